package live

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
	"stockinsights/internal/store"
)

type stubFetcher struct{}

func (stubFetcher) LookupCompanies(context.Context, string) ([]domain.Company, error) {
	return nil, nil
}

func (stubFetcher) StockPrices(_ context.Context, symbols []string) (map[string][]domain.PricePoint, error) {
	out := make(map[string][]domain.PricePoint)
	for _, s := range symbols {
		out[s] = []domain.PricePoint{{Symbol: s, Date: "2024-03-11", Last: 10, Change: 1}}
	}
	return out, nil
}

func (stubFetcher) News(_ context.Context, symbols []string, _ string) (domain.NewsResult, error) {
	return domain.NewsResult{News: []domain.Article{}}, nil
}

func (stubFetcher) Tweets(context.Context, []string, string, string) (domain.TweetsResult, error) {
	return domain.TweetsResult{}, nil
}

func (stubFetcher) Strings(_ context.Context, language string) (map[string]string, error) {
	return map[string]string{"stockInsights": "Stock Insights"}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestManagerCreateRestoreClose(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	m := NewManager(stubFetcher{}, db, db, dashboard.Options{}, quietLogger())
	sess, err := m.Create(ctx, url.Values{"symbols": {"ibm,aapl"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !sess.Embedded() {
		t.Error("session with symbols should be embedded")
	}

	list := m.List()
	if len(list) != 1 || list[0].ID != sess.ID || list[0].Companies != 2 {
		t.Errorf("List() = %+v", list)
	}
	m.Shutdown()

	restored := NewManager(stubFetcher{}, db, db, dashboard.Options{}, quietLogger())
	n, err := restored.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored = %d, want 1", n)
	}
	got, err := restored.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if roster := got.Store().Roster(); len(roster) != 2 || roster[0].Symbol != "IBM" {
		t.Errorf("restored roster = %+v", roster)
	}

	if err := restored.Close(ctx, sess.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := restored.Get(sess.ID); !errors.Is(err, dashboard.ErrUnknownSession) {
		t.Errorf("Get after Close err = %v, want ErrUnknownSession", err)
	}
	recs, err := db.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records after Close = %d, want 0", len(recs))
	}
	restored.Shutdown()
}

func TestManagerCloseUnknown(t *testing.T) {
	m := NewManager(stubFetcher{}, nil, nil, dashboard.Options{}, quietLogger())
	if err := m.Close(context.Background(), "nope"); !errors.Is(err, dashboard.ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func startGRPC(t *testing.T, m *Manager) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(m, 16, quietLogger()).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	return NewClient("passthrough:///bufnet", quietLogger(), grpc.WithContextDialer(dialer))
}

func TestStreamEvents(t *testing.T) {
	m := NewManager(stubFetcher{}, nil, nil, dashboard.Options{}, quietLogger())
	t.Cleanup(m.Shutdown)
	sess, err := m.Create(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	client := startGRPC(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := make(chan Frame, 32)
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, sess.ID, func(f Frame) error {
			frames <- f
			return nil
		})
	}()

	first := <-frames
	if first.Kind != FrameSnapshot || first.Snapshot == nil {
		t.Fatalf("first frame = %+v, want snapshot", first)
	}

	sess.SwitchDate("2024-03-11")

	for {
		select {
		case f := <-frames:
			if f.Kind != FrameEvent {
				t.Fatalf("frame kind = %s, want event", f.Kind)
			}
			if f.Seq <= first.Seq {
				t.Errorf("event seq %d not after snapshot seq %d", f.Seq, first.Seq)
			}
			if f.Action.Type == dashboard.SwitchDate {
				if f.Action.Date != "2024-03-11" {
					t.Errorf("date = %s, want 2024-03-11", f.Action.Date)
				}
				cancel()
				<-done
				return
			}
		case err := <-done:
			t.Fatalf("Watch ended early: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for SWITCH_DATE")
		}
	}
}

func TestStreamEventsUnknownSession(t *testing.T) {
	m := NewManager(stubFetcher{}, nil, nil, dashboard.Options{}, quietLogger())
	client := startGRPC(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Watch(ctx, "nope", func(Frame) error { return nil })
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	snap := dashboard.Snapshot{
		Seq:       7,
		Companies: []domain.Company{{Symbol: "IBM", Description: "IBM Corp"}},
		Series: map[string][]domain.PricePoint{
			"IBM": {{Symbol: "IBM", Date: "2024-03-11", Last: 195.5, Change: -1}},
		},
	}
	msg, err := encodeFrame(Frame{Kind: FrameSnapshot, Seq: 7, Snapshot: &snap})
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	f, err := decodeFrame(msg)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if f.Seq != 7 || f.Snapshot == nil {
		t.Fatalf("frame = %+v", f)
	}
	if p := f.Snapshot.Series["IBM"][0]; p.Last != 195.5 || p.Week52High.Valid {
		t.Errorf("point = %+v", p)
	}
}
