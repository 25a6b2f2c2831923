package bot

import "testing"

func TestDeriveIdentity(t *testing.T) {
	cases := map[string]string{
		"abc":           "user_id:abc",
		"user_id:abc":   "user_id:abc",
		"whatsapp:+123": "whatsapp:+123",
		"":              "user_id:",
	}
	for in, want := range cases {
		if got := DeriveIdentity(in); got != want {
			t.Errorf("DeriveIdentity(%q) = %q, want %q", in, got, want)
		}
		if again := DeriveIdentity(DeriveIdentity(in)); again != want {
			t.Errorf("DeriveIdentity is not idempotent for %q: %q", in, again)
		}
	}
}

func TestSessionID(t *testing.T) {
	ref := Event{ChatServiceSid: "ISx", ConversationSid: "CHx"}.Ref()
	if got := ref.SessionID(); got != "conversations__ISx/CHx" {
		t.Fatalf("SessionID = %q", got)
	}
	back, ok := ParseSessionID(ref.SessionID())
	if !ok || back != ref {
		t.Fatalf("ParseSessionID = %+v, %v", back, ok)
	}
	for _, bad := range []string{"", "ISx/CHx", "conversations__ISx", "conversations__/CHx", "conversations__ISx/"} {
		if _, ok := ParseSessionID(bad); ok {
			t.Errorf("ParseSessionID(%q) accepted", bad)
		}
	}
}
