package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// wakeEventTypes put a new clock in front of the scheduler.
var wakeEventTypes = []string{
	events.TypeDraftStarted,
	events.TypePickStarted,
	events.TypeDraftResumed,
}

// Waker is woken when another process moved a draft.
type Waker interface {
	Wake()
}

// WakeConsumer listens on the event stream and wakes the scheduler when a
// pick clock starts anywhere, so a bot or an already expired clock is handled
// without waiting for the next tick. Missing a message only delays the draft
// until the next tick.
type WakeConsumer struct {
	js            jetstream.JetStream
	stream        string
	subjectPrefix string
	waker         Waker
	cc            jetstream.ConsumeContext
}

func NewWakeConsumer(js jetstream.JetStream, stream, subjectPrefix string, waker Waker) *WakeConsumer {
	return &WakeConsumer{js: js, stream: stream, subjectPrefix: subjectPrefix, waker: waker}
}

// FilterSubjects lists prefix.*.<type> for every wake event.
func (c *WakeConsumer) FilterSubjects() []string {
	subjects := make([]string, 0, len(wakeEventTypes))
	for _, t := range wakeEventTypes {
		subjects = append(subjects, fmt.Sprintf("%s.*.%s", c.subjectPrefix, t))
	}
	return subjects
}

// Start attaches an ordered consumer that only sees new messages.
func (c *WakeConsumer) Start(ctx context.Context) error {
	cons, err := c.js.OrderedConsumer(ctx, c.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: c.FilterSubjects(),
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create wake consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.HandleSubject(msg.Subject())
	})
	if err != nil {
		return fmt.Errorf("consume wake events: %w", err)
	}
	c.cc = cc

	log.Info().
		Str("stream", c.stream).
		Strs("subjects", c.FilterSubjects()).
		Msg("wake consumer started")
	return nil
}

// HandleSubject wakes the scheduler if subject carries a wake event and
// reports whether it did.
func (c *WakeConsumer) HandleSubject(subject string) bool {
	i := strings.LastIndexByte(subject, '.')
	if i < 0 || !strings.HasPrefix(subject, c.subjectPrefix+".") {
		return false
	}
	eventType := subject[i+1:]
	for _, t := range wakeEventTypes {
		if t == eventType {
			log.Debug().Str("subject", subject).Msg("wake event received")
			c.waker.Wake()
			return true
		}
	}
	return false
}

func (c *WakeConsumer) Stop() {
	if c.cc != nil {
		c.cc.Stop()
	}
}
