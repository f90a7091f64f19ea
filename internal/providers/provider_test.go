package providers

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-core/internal/registry"
)

func TestAgentStatus_String(t *testing.T) {
	cases := map[AgentStatus]string{
		StatusIdle:     "idle",
		StatusThinking: "thinking",
		StatusRunning:  "running",
		StatusWaiting:  "waiting",
		StatusError:    "error",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("AgentStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestNoopCallback_ImplementsCallback(t *testing.T) {
	var cb Callback = NoopCallback{}
	cb.OnAssistantMessage("hello")
	cb.OnToken("h")
	cb.OnToolStart("shell", nil)
	cb.OnToolResult("shell", registry.TextOutput("ok"), time.Millisecond)
	cb.OnStatusChange(StatusRunning)
	if cb.RequestApproval(nil) {
		t.Error("expected NoopCallback.RequestApproval to default to false")
	}
}
