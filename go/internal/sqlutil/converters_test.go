package sqlutil

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeConverters(t *testing.T) {
	assert.Nil(t, FromSqlTime(sql.NullTime{}))
	assert.False(t, ToSqlTime(nil).Valid)

	now := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
	got := FromSqlTime(ToSqlTime(&now))
	require.NotNil(t, got)
	assert.True(t, got.Equal(now))
}

func TestRawMessageConverters(t *testing.T) {
	assert.JSONEq(t, `{}`, string(FromNullRawMessage(pqtype.NullRawMessage{})))
	assert.False(t, ToNullRawMessage(nil).Valid)

	doc := json.RawMessage(`{"overall_pick":3}`)
	assert.JSONEq(t, string(doc), string(FromNullRawMessage(ToNullRawMessage(doc))))
}
