package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/connector"
	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/credential"
	"github.com/deltax-data-professor/server/internal/dataset"
	"github.com/deltax-data-professor/server/internal/ingest"
	"github.com/deltax-data-professor/server/internal/llm"
	"github.com/deltax-data-professor/server/internal/provider"
)

func sample() []*dataset.Dataset {
	return []*dataset.Dataset{dataset.FromStrings("t", []string{"a"}, [][]string{{"1"}})}
}

func TestSetModeResets(t *testing.T) {
	var s State
	s.SetDatasets(sample())
	s.Pending = &ingest.Upload{Name: "book.xlsx"}
	s.LastResult = &model.QueryResult{Type: model.ResultString}

	assert.False(t, s.SetMode(ModeFile), "same mode keeps state")
	assert.Len(t, s.Datasets, 1)

	assert.True(t, s.SetMode(ModeDatabase))
	assert.Nil(t, s.Datasets)
	assert.Nil(t, s.Pending)
	assert.Nil(t, s.LastResult)
	assert.Equal(t, ModeDatabase, s.Mode)
	assert.Equal(t, uint64(1), s.Generation)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Database ")
	require.NoError(t, err)
	assert.Equal(t, ModeDatabase, m)

	_, err = ParseMode("ftp")
	assert.Equal(t, errx.ValidationErrorMessage, errx.Message(err)[:len(errx.ValidationErrorMessage)])
}

func TestVoice(t *testing.T) {
	var s State
	s.SetVoice(true, "")
	assert.False(t, s.VoiceEnabled(), "no Groq key available")

	s.SignIn(credential.Record{Provider: provider.Groq, APIKey: "gsk"}, &llm.Adapter{})
	assert.True(t, s.VoiceEnabled())
	assert.Equal(t, "gsk", s.GroqKey())

	s.SignIn(credential.Record{Provider: provider.OpenAI, APIKey: "sk"}, &llm.Adapter{})
	assert.False(t, s.VoiceEnabled())

	s.SetVoice(true, " gsk-2 ")
	assert.True(t, s.VoiceEnabled())

	s.SetVoice(false, "")
	assert.False(t, s.VoiceEnabled())
	assert.Equal(t, "gsk-2", s.GroqKey(), "toggling off keeps the key")
}

func TestSignOut(t *testing.T) {
	var s State
	s.SignIn(credential.Record{Provider: provider.OpenAI}, &llm.Adapter{})
	s.SetMode(ModeDatabase)
	s.SetDatasets(sample())
	s.SetVoice(true, "gsk")

	s.SignOut()
	assert.False(t, s.SignedIn())
	assert.Nil(t, s.Datasets)
	assert.Equal(t, ModeFile, s.Mode)
	assert.Empty(t, s.GroqKey())
}

func TestTasksSupersede(t *testing.T) {
	tasks := NewTasks()
	ctx1, tok1 := tasks.Begin(context.Background(), TaskAsk)
	ctx2, tok2 := tasks.Begin(context.Background(), TaskAsk)
	_, tok3 := tasks.Begin(context.Background(), TaskIngest)

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.False(t, tasks.Current(tok1))
	assert.True(t, tasks.Current(tok2))
	assert.True(t, tasks.Current(tok3))

	tasks.End(tok1)
	assert.True(t, tasks.Current(tok2), "ending a stale token is a no-op")

	tasks.End(tok2)
	assert.False(t, tasks.Current(tok2))
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
}

func TestCommitDropsStaleResults(t *testing.T) {
	s := newSession("s1")
	_, stale := s.Begin(context.Background(), TaskIngest)
	_, fresh := s.Begin(context.Background(), TaskIngest)

	assert.False(t, s.Commit(stale, func(st *State) { st.SetDatasets(sample()) }))
	s.View(func(st *State) { assert.Nil(t, st.Datasets) })

	assert.True(t, s.Commit(fresh, func(st *State) { st.SetDatasets(sample()) }))
	s.View(func(st *State) { assert.Len(t, st.Datasets, 1) })
}

func TestModeChangeCancelsInFlight(t *testing.T) {
	s := newSession("s1")
	ctx, tok := s.Begin(context.Background(), TaskConnect)

	s.Update(func(st *State) { st.SetMode(ModeDatabase) })
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, s.Commit(tok, func(st *State) { st.SetDatasets(sample()) }))
}

func TestSwitchBeforeBeginRefusesTask(t *testing.T) {
	s := newSession("s1")
	var mode Mode
	s.View(func(st *State) { mode = st.Mode })
	require.Equal(t, ModeFile, mode)

	// The source switches after the handler looked at the mode.
	s.Update(func(st *State) { st.SetMode(ModeDatabase) })

	_, tok, err := s.BeginIf(context.Background(), TaskIngest, RequireMode(ModeFile))
	require.Error(t, err)
	assert.Equal(t, 422, errx.Status(err))
	assert.False(t, s.tasks.Current(tok))
	assert.False(t, s.Commit(tok, func(st *State) { st.SetDatasets(sample()) }))
	s.View(func(st *State) {
		assert.Equal(t, ModeDatabase, st.Mode)
		assert.Nil(t, st.Datasets)
	})
}

func TestSwitchAfterBeginDropsCommit(t *testing.T) {
	s := newSession("s1")
	_, tok, err := s.BeginIf(context.Background(), TaskIngest, RequireMode(ModeFile))
	require.NoError(t, err)

	s.Update(func(st *State) { st.SetMode(ModeDatabase) })
	// A later task of the same kind must not revive the stale token.
	_, _ = s.Begin(context.Background(), TaskConnect)

	assert.False(t, s.Commit(tok, func(st *State) { st.SetDatasets(sample()) }))
	s.View(func(st *State) { assert.Nil(t, st.Datasets) })
}

func TestCommitChecksGeneration(t *testing.T) {
	s := newSession("s1")
	_, tok := s.Begin(context.Background(), TaskIngest)
	s.mu.Lock()
	s.state.Reset()
	s.mu.Unlock()

	assert.True(t, s.tasks.Current(tok), "task bookkeeping alone would accept it")
	assert.False(t, s.Commit(tok, func(st *State) { st.SetDatasets(sample()) }))
}

func TestConcurrentCommitsKeepLatest(t *testing.T) {
	s := newSession("s1")
	var wg sync.WaitGroup
	var last Token
	for i := 0; i < 20; i++ {
		_, tok := s.Begin(context.Background(), TaskAsk)
		last = tok
		wg.Add(1)
		go func(tok Token, n int) {
			defer wg.Done()
			s.Commit(tok, func(st *State) {
				st.LastResult = &model.QueryResult{Type: model.ResultNumber, Number: float64(n)}
			})
		}(tok, i)
	}
	wg.Wait()
	assert.True(t, s.tasks.Current(last))
	s.View(func(st *State) {
		require.NotNil(t, st.LastResult)
		assert.Equal(t, float64(19), st.LastResult.Number)
	})
}

func TestManagerSweep(t *testing.T) {
	m := NewManager(Config{TTL: "1m", SweepInterval: "1m"})
	var evicted []string
	m.OnEvict = func(id string) { evicted = append(evicted, id) }

	s := m.Create()
	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Same(t, s, m.GetOrCreate(s.ID))
	assert.NotSame(t, s, m.GetOrCreate("unknown"))
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, 0, m.Sweep(time.Now()))
	assert.Equal(t, 2, m.Sweep(time.Now().Add(2*time.Minute)))
	assert.Contains(t, evicted, s.ID)
	_, ok = m.Get(s.ID)
	assert.False(t, ok)
}

func TestDispatcherFiles(t *testing.T) {
	d := NewDispatcher(ingest.New(ingest.DefaultConfig()), connector.DefaultConfig())

	res := d.Files(context.Background(), nil, ingest.Options{})
	assert.Equal(t, 1, core.CountLevel(res.Notices, core.LevelWarning))

	res = d.Files(context.Background(), []ingest.Upload{{Name: "a.csv", Data: []byte("x,y\n1,2\n")}}, ingest.Options{})
	require.Len(t, res.Datasets, 1)
	assert.Equal(t, []string{"x", "y"}, res.Datasets[0].ColumnNames())
}

func TestDispatcherDatabase(t *testing.T) {
	var gotDesc connector.Descriptor
	d := NewDispatcher(ingest.New(ingest.DefaultConfig()), connector.DefaultConfig()).
		WithLoader(func(_ context.Context, desc connector.Descriptor, _ connector.Config) (*dataset.Dataset, error) {
			gotDesc = desc
			return sample()[0], nil
		})

	ds, notice := d.Database(context.Background(), "SQLite", connector.Fields{Database: "/tmp/a.db", Table: "t"})
	require.Nil(t, notice)
	require.NotNil(t, ds)
	assert.Equal(t, connector.SQLite, gotDesc.Dialect)
	assert.Nil(t, gotDesc.Host)

	_, notice = d.Database(context.Background(), "MySQL", connector.Fields{Table: "t"})
	require.NotNil(t, notice)
	assert.Equal(t, core.LevelError, notice.Level)

	_, notice = d.Database(context.Background(), "Oracle", connector.Fields{})
	require.NotNil(t, notice)

	d.WithLoader(func(context.Context, connector.Descriptor, connector.Config) (*dataset.Dataset, error) {
		return nil, errx.Connection(errors.New("dial tcp: refused"))
	})
	_, notice = d.Database(context.Background(), "SQLite", connector.Fields{Database: "a.db", Table: "t"})
	require.NotNil(t, notice)
	assert.Equal(t, "Failed to connect to SQLite: dial tcp: refused", notice.Message)
}
