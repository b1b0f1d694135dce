package mcpruntime_test

import (
	"encoding/json"
	"testing"
	"time"

	mcpruntime "github.com/mcpcore/runtime"
)

func TestHealthCheck(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	health := rt.HealthCheck(testContext(t))
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want %q", health.Status, "healthy")
	}
	if !health.Initialized {
		t.Error("Initialized = false, want true")
	}
}

func TestConnectServerEmptyCommand(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	err := rt.ConnectServer(testContext(t), "s", mcpruntime.LaunchSpec{})
	if err == nil || err.Kind != mcpruntime.KindConfiguration {
		t.Fatalf("err = %v, want a Configuration error", err)
	}
}

func TestConnectServerDuplicateIDLeavesOriginalIntact(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	ctx := testContext(t)
	if err := rt.ConnectServer(ctx, "echo", echoLaunchSpec(t, 0)); err != nil {
		t.Fatalf("first connect: %v", err)
	}

	if err := rt.ConnectServer(ctx, "echo", echoLaunchSpec(t, 0)); err == nil || err.Kind != mcpruntime.KindConfiguration {
		t.Fatalf("second connect err = %v, want a Configuration error", err)
	}

	conns := rt.ListConnections(ctx)
	if len(conns) != 1 {
		t.Fatalf("ListConnections() = %d entries, want 1", len(conns))
	}
	if conns[0].Status != mcpruntime.StatusConnected {
		t.Errorf("Status = %q, want %q", conns[0].Status, mcpruntime.StatusConnected)
	}
}

func TestDisconnectUnknownServerID(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	err := rt.DisconnectServer(testContext(t), "missing")
	if err == nil || err.Kind != mcpruntime.KindConfiguration {
		t.Fatalf("err = %v, want a Configuration error", err)
	}
}

func TestListToolsAndExecuteTool(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	ctx := testContext(t)
	if err := rt.ConnectServer(ctx, "echo", echoLaunchSpec(t, 0)); err != nil {
		t.Fatalf("ConnectServer: %v", err)
	}

	toolsJSON, err := rt.ListTools(ctx, "echo")
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var tools struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if unmarshalErr := json.Unmarshal(toolsJSON, &tools); unmarshalErr != nil {
		t.Fatalf("unmarshal tools: %v", unmarshalErr)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "echo" {
		t.Fatalf("tools = %+v, want a single \"echo\" tool", tools.Tools)
	}

	result, err := rt.ExecuteTool(ctx, "echo", "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if result.DurationMS < 0 {
		t.Errorf("DurationMS = %d, want >= 0", result.DurationMS)
	}

	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if unmarshalErr := json.Unmarshal(result.Result, &decoded); unmarshalErr != nil {
		t.Fatalf("unmarshal result: %v", unmarshalErr)
	}
	if len(decoded.Content) != 1 || decoded.Content[0].Text != "Echo: hi" {
		t.Fatalf("content = %+v, want \"Echo: hi\"", decoded.Content)
	}
}

func TestExecuteToolUnknownServerID(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	_, err := rt.ExecuteTool(testContext(t), "missing", "echo", nil)
	if err == nil || err.Kind != mcpruntime.KindConfiguration {
		t.Fatalf("err = %v, want a Configuration error", err)
	}
}

func TestConnectServerFailedHandshakeEmitsNoEvents(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	sub := rt.Subscribe()
	defer rt.Unsubscribe(sub)

	ctx := testContext(t)
	err := rt.ConnectServer(ctx, "bad", badHandshakeLaunchSpec(t))
	if err == nil || err.Kind != mcpruntime.KindProtocol {
		t.Fatalf("err = %v, want a Protocol error", err)
	}

	if conns := rt.ListConnections(ctx); len(conns) != 0 {
		t.Fatalf("ListConnections() = %d entries, want 0", len(conns))
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("got unexpected event %+v after a failed handshake", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeReceivesConnectAndDisconnectEvents(t *testing.T) {
	rt := mcpruntime.New()
	defer rt.Shutdown(testContext(t))

	sub := rt.Subscribe()
	defer rt.Unsubscribe(sub)

	ctx := testContext(t)
	if err := rt.ConnectServer(ctx, "echo", echoLaunchSpec(t, 0)); err != nil {
		t.Fatalf("ConnectServer: %v", err)
	}
	if err := rt.DisconnectServer(ctx, "echo"); err != nil {
		t.Fatalf("DisconnectServer: %v", err)
	}

	var topics []mcpruntime.EventTopic
	deadline := time.After(2 * time.Second)
collect:
	for len(topics) < 4 {
		select {
		case ev := <-sub.Events():
			topics = append(topics, ev.Topic)
		case <-deadline:
			break collect
		}
	}

	want := map[mcpruntime.EventTopic]int{
		mcpruntime.TopicServerConnected:    1,
		mcpruntime.TopicServerDisconnected: 1,
		mcpruntime.TopicConnectionChanged:  2,
	}
	got := map[mcpruntime.EventTopic]int{}
	for _, topic := range topics {
		got[topic]++
	}
	for topic, count := range want {
		if got[topic] != count {
			t.Errorf("%s fired %d times, want %d (all events: %+v)", topic, got[topic], count, topics)
		}
	}
}

func TestShutdownClosesEveryConnection(t *testing.T) {
	rt := mcpruntime.New()
	ctx := testContext(t)

	for _, id := range []mcpruntime.ServerID{"a", "b", "c"} {
		if err := rt.ConnectServer(ctx, id, echoLaunchSpec(t, 0)); err != nil {
			t.Fatalf("ConnectServer(%s): %v", id, err)
		}
	}

	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if conns := rt.ListConnections(ctx); len(conns) != 0 {
		t.Errorf("ListConnections() after Shutdown = %d entries, want 0", len(conns))
	}
}
