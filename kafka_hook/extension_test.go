package kafkahook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/event"
	kafkahook "github.com/xraph/tally/kafka_hook"
	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

const (
	admin types.Principal = "0xadmin"
	alice types.Principal = "0xalice"
)

func eth(s string) types.Money { return types.MustParse(s, "eth") }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	calls  int
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestPublishesLedgerEvents(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}

	l, err := tally.New(memory.New(), admin, eth("0.01"),
		tally.WithLogger(quiet()),
		tally.WithWallet(payout.Unbounded()),
		tally.WithAppID("acme"),
		tally.WithPlugin(kafkahook.New(w, kafkahook.WithLogger(quiet()))),
	)
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx))

	_, err = l.TopUpBalance(ctx, alice, eth("1"))
	require.NoError(t, err)
	_, err = l.RecordUsage(ctx, alice, 3)
	require.NoError(t, err)
	_, err = l.UpdatePrice(ctx, admin, eth("0.02"))
	require.NoError(t, err)
	_, err = l.WithdrawFunds(ctx, admin)
	require.NoError(t, err)

	require.NoError(t, l.Stop())
	assert.True(t, w.closed, "writer should be closed on shutdown")

	require.Len(t, w.msgs, 4)
	wantTypes := []string{
		event.NameBalanceToppedUp,
		event.NameUsageRecorded,
		event.NamePriceUpdated,
		event.NameFundsWithdrawn,
	}
	for i, msg := range w.msgs {
		assert.Equal(t, "acme", string(msg.Key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, kafkahook.HeaderEventType, msg.Headers[0].Key)
		assert.Equal(t, wantTypes[i], string(msg.Headers[0].Value))

		var env kafkahook.Envelope
		require.NoError(t, json.Unmarshal(msg.Value, &env))
		assert.Equal(t, wantTypes[i], env.Type)
		assert.Equal(t, "acme", env.AppID)
		assert.Equal(t, uint64(i+1), env.Sequence)
		assert.NotEmpty(t, env.ID)
	}

	var usage struct {
		Caller string      `json:"caller"`
		Units  uint64      `json:"units"`
		Cost   types.Money `json:"cost"`
	}
	var env kafkahook.Envelope
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &env))
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Equal(t, alice.String(), usage.Caller)
	assert.Equal(t, uint64(3), usage.Units)
	assert.True(t, usage.Cost.Equal(eth("0.03")))
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{err: errors.New("broker unavailable")}
	ext := kafkahook.New(w,
		kafkahook.WithLogger(quiet()),
		kafkahook.WithFailureThreshold(2),
		kafkahook.WithOpenTimeout(time.Minute),
	)

	evt := event.PriceUpdated{Meta: event.NewMeta("default", 1, time.Now()), NewPrice: eth("0.02")}

	for i := 0; i < 2; i++ {
		err := ext.OnPriceUpdated(ctx, evt)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, gobreaker.StateOpen, ext.BreakerState())

	err := ext.OnPriceUpdated(ctx, evt)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, w.calls, "open breaker must not reach the writer")
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{err: errors.New("broker unavailable")}

	l, err := tally.New(memory.New(), admin, eth("0.01"),
		tally.WithLogger(quiet()),
		tally.WithWallet(payout.Unbounded()),
		tally.WithPlugin(kafkahook.New(w, kafkahook.WithLogger(quiet()))),
	)
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop() })

	_, err = l.TopUpBalance(ctx, alice, eth("0.5"))
	require.NoError(t, err)

	b, err := l.UserBalance(ctx, alice)
	require.NoError(t, err)
	assert.True(t, b.Equal(eth("0.5")))
}

func TestNewWriter(t *testing.T) {
	w := kafkahook.NewWriter([]string{"localhost:9092"}, "")
	assert.Equal(t, kafkahook.DefaultTopic, w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
