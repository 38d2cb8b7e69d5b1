package models

import "testing"

func TestSessionStatusIsTerminal(t *testing.T) {
	cases := map[SessionStatus]bool{
		SessionParsing:        false,
		SessionWaitingConfirm: false,
		SessionExecuting:      false,
		SessionDone:           true,
		SessionError:          true,
		SessionCancelled:      true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}
