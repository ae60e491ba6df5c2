package toolset

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_MalformedInputs(t *testing.T) {
	tests := []struct {
		tool  string
		input string
	}{
		{ToolInputTextbox, ""},
		{ToolInputTextbox, "none"},
		{ToolInputTextbox, "NULL"},
		{ToolInputTextbox, "#username"},
		{ToolInputTextbox, ",admin"},
		{ToolClickButton, ""},
		{ToolClickButton, "None"},
		{ToolSQLInjectionTest, ""},
		{ToolSQLInjectionTest, "null"},
		{ToolSQLInjectionTest, "#username"},
		{ToolSQLInjectionTest, "#username,"},
		{ToolXSSTest, ""},
		{ToolXSSTest, "none"},
		{"port_scan", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.tool+"/"+tt.input, func(t *testing.T) {
			page := newFakePage("http://target.local/login", "#username", "#password")
			ts, run := newTestToolset(t, page)

			var res Result
			require.NotPanics(t, func() {
				res = ts.Call(context.Background(), tt.tool, tt.input)
			})
			assert.False(t, res.OK)
			assert.Contains(t, res.String(), "Error")
			assert.Empty(t, page.fills)
			assert.Empty(t, run.FindingsSnapshot())
		})
	}
}

func TestInputTextbox(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantSelector string
		wantText     string
	}{
		{"splits on first comma only", "#q,a,b,c", "#q", "a,b,c"},
		{"trims quotes", `"#q", 'admin'`, "#q", "admin"},
		{"attribute selector", "input[name='q'],hello", "input[name='q']", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage("http://target.local/login", tt.wantSelector)
			ts, run := newTestToolset(t, page)

			res := ts.Call(context.Background(), ToolInputTextbox, tt.input)
			require.True(t, res.OK, res.Message)
			assert.Equal(t, tt.wantText, page.values[tt.wantSelector])
			assert.Equal(t, []string{tt.wantSelector + "=", tt.wantSelector + "=" + tt.wantText}, page.fills)
			assert.Equal(t, "Successfully typed '"+tt.wantText+"' into element with selector '"+tt.wantSelector+"'", res.String())
			assert.Contains(t, eventMessages(run), "Testing input field: "+tt.wantSelector)
		})
	}
}

func TestInputTextbox_MissingElement(t *testing.T) {
	ts, _ := newTestToolset(t, newFakePage("http://target.local/login"))

	res := ts.Call(context.Background(), ToolInputTextbox, "#nope,value")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "Error typing into textbox")
	assert.Contains(t, res.Message, "#nope")
}

func TestClickButton(t *testing.T) {
	t.Run("navigation observed", func(t *testing.T) {
		page := newFakePage("http://target.local/login", "#go")
		page.onClick["#go"] = func(p *fakePage) { p.url = "http://target.local/home" }
		ts, run := newTestToolset(t, page)

		res := ts.Call(context.Background(), ToolClickButton, "'#go'")
		require.True(t, res.OK)
		assert.Equal(t, "Successfully clicked element '#go' - navigated from http://target.local/login to http://target.local/home", res.Message)
		assert.Contains(t, eventMessages(run), "Clicking element: #go")
	})

	t.Run("no navigation", func(t *testing.T) {
		page := newFakePage("http://target.local/login", "#go")
		ts, _ := newTestToolset(t, page)

		res := ts.Call(context.Background(), ToolClickButton, "#go")
		require.True(t, res.OK)
		assert.Equal(t, "Successfully clicked element '#go' - no navigation detected", res.Message)
	})

	t.Run("missing element", func(t *testing.T) {
		ts, _ := newTestToolset(t, newFakePage("http://target.local/login"))

		res := ts.Call(context.Background(), ToolClickButton, "#go")
		assert.False(t, res.OK)
		assert.Contains(t, res.Message, "Error clicking button")
	})
}

func TestCall_CancelledContext(t *testing.T) {
	page := newFakePage("http://target.local/login", "#q")
	ts, run := newTestToolset(t, page)
	before := len(eventMessages(run))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := ts.Call(ctx, ToolInputTextbox, "#q,x")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "cancelled")
	assert.Empty(t, page.fills)
	assert.Len(t, eventMessages(run), before)
}

func TestCall_Observer(t *testing.T) {
	page := newFakePage("http://target.local/login", "#q")
	ts, _ := newTestToolset(t, page)
	obs := &recordingObserver{}
	ts.WithObserver(obs)

	ts.Call(context.Background(), ToolInputTextbox, "#q,x")
	ts.Call(context.Background(), ToolClickButton, "")

	assert.Equal(t, []string{ToolInputTextbox, ToolClickButton}, obs.calls)
}

func TestCall_NilRecorder(t *testing.T) {
	page := newFakePage("http://target.local/login", "#q")
	ts := New(page, nil, testConfig(), logger.NewTestLogger())

	res := ts.Call(context.Background(), ToolInputTextbox, "#q,x")
	assert.True(t, res.OK)
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
		var schema map[string]interface{}
		require.NoError(t, json.Unmarshal(d.InputSchema, &schema), d.Name)
		assert.Equal(t, "object", schema["type"])
	}
	assert.Equal(t, []string{ToolScrapePage, ToolInputTextbox, ToolClickButton, ToolSQLInjectionTest, ToolXSSTest}, names)
}

func TestQueryFromArguments(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"query": "#u,#p"}`, "#u,#p"},
		{`{"input": "#q"}`, "#q"},
		{`"scrape"`, "scrape"},
		{`{}`, ""},
		{``, ""},
		{`not json`, "not json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QueryFromArguments(json.RawMessage(tt.raw)), tt.raw)
	}
}

func TestRecorderIsTestRun(t *testing.T) {
	var _ Recorder = (*testrun.TestRun)(nil)
}
