package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
	"github.com/armatrix/toolhost/mcp/mcptest"
)

// --- Fakes ---

// fakeModel answers tool-selection prompts with selection and everything
// else with answer.
type fakeModel struct {
	mu        sync.Mutex
	selection string
	answer    string
	err       error
	reqs      []llm.Request
}

func isSelectionPrompt(req llm.Request) bool {
	return strings.Contains(req.System, "Available tools:")
}

func (m *fakeModel) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if isSelectionPrompt(req) {
		return &llm.Response{Text: m.selection}, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Text: m.answer, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (m *fakeModel) answerRequests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []llm.Request
	for _, r := range m.reqs {
		if !isSelectionPrompt(r) {
			out = append(out, r)
		}
	}
	return out
}

type fakeServices struct {
	mu           sync.Mutex
	state        auth.State
	statusErr    error
	ensureErr    error
	afterEnsure  auth.State
	ensureCalls  int
	refreshCalls int
}

func (f *fakeServices) Refresh(_ context.Context, id auth.ServiceID) (auth.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.statusErr != nil {
		return auth.Status{}, f.statusErr
	}
	return auth.Status{Service: id, State: f.state}, nil
}

func (f *fakeServices) EnsureRunning(_ context.Context, id auth.ServiceID) (*mcp.ServerProcess, auth.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return nil, auth.Status{Service: id, State: f.afterEnsure}, f.ensureErr
	}
	f.state = auth.StateRunning
	return nil, auth.Status{Service: id, State: auth.StateRunning}, nil
}

type fakeCatalog struct {
	mu      sync.Mutex
	tools   []mcp.ToolDescriptor
	result  *mcp.CallResult
	err     error
	servers []string
	calls   []map[string]any
}

func (c *fakeCatalog) ToolsForServer(name string) []mcp.ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = append(c.servers, name)
	return c.tools
}

func (c *fakeCatalog) CallTool(_ context.Context, _ mcp.ToolDescriptor, args map[string]any) (*mcp.CallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, args)
	return c.result, c.err
}

func driveCatalog() *fakeCatalog {
	return &fakeCatalog{
		tools: []mcp.ToolDescriptor{
			{Name: "list_files", Server: "google-drive", QualifiedName: "google-drive.list_files"},
			{
				Name: "search_files", Server: "google-drive", QualifiedName: "google-drive.search_files",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
			},
		},
		result: &mcp.CallResult{StructuredContent: map[string]any{
			"files": []any{map[string]any{"name": "Budget.xlsx", "id": "f1"}},
		}},
	}
}

// --- Tests ---

func TestAnswer_General(t *testing.T) {
	model := &fakeModel{answer: "Sure! Paris is the capital of France. I hope this helps!"}
	o := New(model)

	ans, err := o.Answer(context.Background(), Question{Text: "Capital of France?", Category: CategoryGeneral})
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France.", ans.Text)
	assert.NotEmpty(t, ans.ID)
	assert.Equal(t, CategoryGeneral, ans.Category)
	assert.Empty(t, ans.Service)
	assert.Equal(t, llm.Usage{InputTokens: 10, OutputTokens: 5}, ans.Usage)

	reqs := model.answerRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, DefaultStrategies()[CategoryGeneral].SystemPrompt, reqs[0].System)
	assert.Equal(t, "Capital of France?", reqs[0].Messages[0].Text)
	assert.Equal(t, 600, reqs[0].MaxTokens)
	require.NotNil(t, reqs[0].Temperature)
	assert.InDelta(t, 0.5, *reqs[0].Temperature, 1e-9)
}

func TestAnswer_UnknownCategoryUsesGeneral(t *testing.T) {
	o := New(&fakeModel{answer: "ok"})
	ans, err := o.Answer(context.Background(), Question{Text: "hm", Category: "astrology"})
	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, ans.Category)
}

func TestAnswer_UniqueIDs(t *testing.T) {
	o := New(&fakeModel{answer: "ok"})
	a, err := o.Answer(context.Background(), Question{Text: "1"})
	require.NoError(t, err)
	b, err := o.Answer(context.Background(), Question{Text: "2"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAnswer_ServiceDataInjected(t *testing.T) {
	model := &fakeModel{
		selection: `{"selectedTool":"search_files","query":"budget"}`,
		answer:    "The budget lives in Budget.xlsx.",
	}
	catalog := driveCatalog()
	services := &fakeServices{state: auth.StateRunning}
	o := New(model, WithServices(services), WithCatalog(catalog))

	ans, err := o.Answer(context.Background(), Question{Text: "Where is the budget?", Category: CategoryDrive})
	require.NoError(t, err)

	assert.Equal(t, "The budget lives in Budget.xlsx.", ans.Text)
	assert.Equal(t, auth.GoogleDrive, ans.Service)
	assert.Equal(t, "google-drive.search_files", ans.Tool)
	assert.Empty(t, ans.Notice)
	assert.False(t, ans.Guidance)
	assert.Equal(t, 0, services.ensureCalls)

	assert.Equal(t, []string{"google-drive"}, catalog.servers)
	require.Len(t, catalog.calls, 1)
	assert.Equal(t, map[string]any{"query": "budget"}, catalog.calls[0])

	reqs := model.answerRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Retrieved from Google Drive:\n- Budget.xlsx (id: f1)\n\nQuestion: Where is the budget?", reqs[0].Messages[0].Text)
}

func TestAnswer_GuidanceWhenNotAuthorized(t *testing.T) {
	tests := []struct {
		name     string
		services *fakeServices
		contains string
	}{
		{"pending auth", &fakeServices{state: auth.StatePendingAuth}, "Slack needs authorization"},
		{"unconfigured", &fakeServices{state: auth.StateUnconfigured}, "Slack is not connected"},
		{"unknown service", &fakeServices{statusErr: auth.ErrUnknownService}, "Slack is not connected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{answer: "should not be used"}
			catalog := &fakeCatalog{}
			o := New(model, WithServices(tt.services), WithCatalog(catalog))

			ans, err := o.Answer(context.Background(), Question{Text: "unread messages?", Category: CategorySlack})
			require.NoError(t, err)

			assert.True(t, ans.Guidance)
			assert.Contains(t, ans.Text, tt.contains)
			assert.Equal(t, auth.Slack, ans.Service)
			assert.Empty(t, model.reqs)
			assert.Empty(t, catalog.calls)
		})
	}
}

func TestAnswer_StartsIdleServiceOnce(t *testing.T) {
	model := &fakeModel{selection: `{"selectedTool":"search_files","query":"budget"}`, answer: "Found it."}
	services := &fakeServices{state: auth.StateAuthenticatedIdle}
	catalog := driveCatalog()
	o := New(model, WithServices(services), WithCatalog(catalog))

	ans, err := o.Answer(context.Background(), Question{Text: "budget?", Category: CategoryDrive})
	require.NoError(t, err)

	assert.Equal(t, 1, services.ensureCalls)
	assert.Equal(t, "google-drive.search_files", ans.Tool)
	assert.Len(t, catalog.calls, 1)
}

func TestAnswer_IdleStartFails(t *testing.T) {
	model := &fakeModel{answer: "I can't see your files right now."}
	services := &fakeServices{
		state:       auth.StateAuthenticatedIdle,
		ensureErr:   &mcp.SpawnError{Server: "google-drive", Err: errors.New("exec: not found")},
		afterEnsure: auth.StateAuthenticatedIdle,
	}
	catalog := driveCatalog()
	o := New(model, WithServices(services), WithCatalog(catalog))

	ans, err := o.Answer(context.Background(), Question{Text: "budget?", Category: CategoryDrive})
	require.NoError(t, err)

	assert.Equal(t, 1, services.ensureCalls)
	assert.False(t, ans.Guidance)
	assert.Contains(t, ans.Notice, "Unable to start the Google Drive connector")
	assert.Empty(t, catalog.calls)

	reqs := model.answerRequests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].Messages[0].Text, "Note: Unable to start"))
}

func TestAnswer_IdleStartFindsTokenGone(t *testing.T) {
	services := &fakeServices{
		state:       auth.StateAuthenticatedIdle,
		ensureErr:   &auth.NotAuthorizedError{Service: auth.GoogleDrive, State: auth.StatePendingAuth},
		afterEnsure: auth.StatePendingAuth,
	}
	o := New(&fakeModel{}, WithServices(services), WithCatalog(driveCatalog()))

	ans, err := o.Answer(context.Background(), Question{Text: "budget?", Category: CategoryDrive})
	require.NoError(t, err)
	assert.True(t, ans.Guidance)
	assert.Contains(t, ans.Text, "Google Drive needs authorization")
}

func TestAnswer_CredentialsArriveAfterLastRefresh(t *testing.T) {
	ctx := context.Background()
	spawner := mcptest.NewSpawner()
	srv := mcptest.NewServer("github")
	mcptest.AddTool(srv, "search_issues", "Search issues", func(_ context.Context, in struct {
		Query string `json:"query"`
	}) (string, error) {
		return "#42 flaky deploy: " + in.Query, nil
	})
	spawner.Register("github", srv)

	sup := mcp.NewSupervisor(mcp.WithSpawner(spawner), mcp.WithShutdownGrace(500*time.Millisecond))
	creds := auth.NewMemoryCredentials()
	tracker := auth.NewTracker(creds, sup)
	t.Cleanup(func() {
		tracker.Close()
		_ = sup.Close()
	})
	require.NoError(t, tracker.Register(auth.Service{
		ID: auth.GitHub, OAuth: true,
		Server: mcp.ServerConfig{Command: "npx", Args: []string{"server-github"}},
	}))

	st, err := tracker.Refresh(ctx, auth.GitHub)
	require.NoError(t, err)
	require.Equal(t, auth.StateUnconfigured, st.State)

	creds.SetClient(auth.GitHub, &oauth2.Config{ClientID: "client-id"})
	creds.SetToken(auth.GitHub, &oauth2.Token{AccessToken: "gho_abc", Expiry: time.Now().Add(time.Hour)})

	model := &fakeModel{selection: `{"selectedTool":"search_issues","query":"deploy"}`, answer: "Issue #42 tracks it."}
	o := New(model, WithServices(tracker), WithCatalog(mcp.NewManager(sup)))

	ans, err := o.Answer(ctx, Question{Text: "any deploy issues?", Category: CategoryGitHub})
	require.NoError(t, err)

	assert.False(t, ans.Guidance)
	assert.Equal(t, "Issue #42 tracks it.", ans.Text)
	assert.Equal(t, "github.search_issues", ans.Tool)
	assert.Equal(t, 1, spawner.SpawnCount("github"))
	assert.Equal(t, 1, srv.Calls("search_issues"))
}

func TestAnswer_RefreshesBeforeDeciding(t *testing.T) {
	services := &fakeServices{state: auth.StateRunning}
	o := New(&fakeModel{selection: `{"selectedTool":"list_files"}`, answer: "ok"},
		WithServices(services), WithCatalog(driveCatalog()))

	_, err := o.Answer(context.Background(), Question{Text: "files?", Category: CategoryDrive})
	require.NoError(t, err)
	assert.Equal(t, 1, services.refreshCalls)
}

func TestAnswer_ToolFailuresBecomeNotices(t *testing.T) {
	tests := []struct {
		name    string
		catalog *fakeCatalog
		notice  string
	}{
		{"rpc error", func() *fakeCatalog {
			c := driveCatalog()
			c.err = &mcp.RPCError{Code: -32603, Message: "backend down"}
			return c
		}(), "Unable to retrieve data from Google Drive."},
		{"timeout", func() *fakeCatalog {
			c := driveCatalog()
			c.err = mcp.ErrRequestTimeout
			return c
		}(), "Unable to retrieve data from Google Drive."},
		{"tool error result", func() *fakeCatalog {
			c := driveCatalog()
			c.result = &mcp.CallResult{IsError: true, Content: []mcp.ContentBlock{{Type: "text", Text: "quota exceeded"}}}
			return c
		}(), "Unable to retrieve data from Google Drive."},
		{"no tools", &fakeCatalog{}, "Unable to retrieve data from Google Drive."},
		{"empty result", func() *fakeCatalog {
			c := driveCatalog()
			c.result = &mcp.CallResult{Content: []mcp.ContentBlock{{Type: "text", Text: "[]"}}}
			return c
		}(), "No matching Google Drive data was found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{selection: `{"selectedTool":"search_files","query":"budget"}`, answer: "Nothing found."}
			o := New(model, WithServices(&fakeServices{state: auth.StateRunning}), WithCatalog(tt.catalog))

			ans, err := o.Answer(context.Background(), Question{Text: "budget?", Category: CategoryDrive})
			require.NoError(t, err)
			assert.Equal(t, tt.notice, ans.Notice)
			assert.Equal(t, "Nothing found.", ans.Text)

			reqs := model.answerRequests()
			require.Len(t, reqs, 1)
			assert.Contains(t, reqs[0].Messages[0].Text, "Note: "+tt.notice)
		})
	}
}

func TestAnswer_NoCatalog(t *testing.T) {
	o := New(&fakeModel{answer: "ok"})
	ans, err := o.Answer(context.Background(), Question{Text: "issues?", Category: CategoryGitHub})
	require.NoError(t, err)
	assert.Equal(t, "Unable to retrieve data from GitHub.", ans.Notice)
}

func TestAnswer_GenerationFailure(t *testing.T) {
	cause := errors.New("529 overloaded")
	o := New(&fakeModel{err: cause})

	_, err := o.Answer(context.Background(), Question{Text: "hi"})
	require.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, cause)
}

func TestAnswer_NoCompleter(t *testing.T) {
	_, err := New(nil).Answer(context.Background(), Question{Text: "hi"})
	require.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, llm.ErrNoCompleter)
}

func TestAnswer_StyleApplied(t *testing.T) {
	model := &fakeModel{answer: "Certainly! 12*3=36"}
	ans, err := New(model).Answer(context.Background(), Question{Text: "12 times 3", Category: CategoryMath})
	require.NoError(t, err)
	assert.Equal(t, "12 * 3 = 36", ans.Text)
}

func TestAnswer_ImageForwarded(t *testing.T) {
	model := &fakeModel{answer: "A chart."}
	img := &llm.Image{MediaType: "image/png", Data: []byte{1, 2, 3}}

	_, err := New(model).Answer(context.Background(), Question{Text: "what is on screen?", Image: img})
	require.NoError(t, err)
	assert.Same(t, img, model.answerRequests()[0].Messages[0].Image)
}

func TestAnswer_CustomStrategy(t *testing.T) {
	model := &fakeModel{answer: "ok"}
	o := New(model, WithStrategy(Strategy{Category: CategoryGeneral, SystemPrompt: "custom", MaxTokens: 42}))

	_, err := o.Answer(context.Background(), Question{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "custom", model.answerRequests()[0].System)
	assert.Equal(t, 42, model.answerRequests()[0].MaxTokens)
}

// gatedModel blocks every completion until release is closed and tracks
// how many run at once.
type gatedModel struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (m *gatedModel) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-m.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	text := req.Messages[0].Text
	if text == "fail" {
		return nil, errors.New("boom")
	}
	return &llm.Response{Text: "answer to " + text}, nil
}

func TestAnswerBatch(t *testing.T) {
	model := &gatedModel{release: make(chan struct{})}
	o := New(model, WithBatchLimit(2))

	questions := make([]Question, 6)
	for i := range questions {
		questions[i] = Question{Text: fmt.Sprintf("q%d", i)}
	}
	questions[3].Text = "fail"

	done := make(chan struct{})
	var (
		answers []*Answer
		err     error
	)
	go func() {
		answers, err = o.AnswerBatch(context.Background(), questions)
		close(done)
	}()

	require.Eventually(t, func() bool { return model.active.Load() == 2 }, time.Second, time.Millisecond)
	close(model.release)
	<-done

	assert.Equal(t, int32(2), model.peak.Load())
	require.ErrorIs(t, err, ErrGeneration)
	require.Len(t, answers, 6)
	for i, a := range answers {
		if i == 3 {
			assert.Nil(t, a)
			continue
		}
		require.NotNil(t, a)
		assert.Equal(t, fmt.Sprintf("Answer to q%d", i), a.Text)
	}
}

func TestAnswerBatch_Empty(t *testing.T) {
	answers, err := New(&fakeModel{}).AnswerBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, answers)
}
