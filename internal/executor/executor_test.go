package executor

import "testing"

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantExec string
		wantArgs []string
	}{
		{"", "", nil},
		{"   ", "", nil},
		{"assistant-cli", "assistant-cli", []string{}},
		{"assistant-cli --oneshot --json", "assistant-cli", []string{"--oneshot", "--json"}},
		{"  spaced   out  ", "spaced", []string{"out"}},
	}

	for _, tc := range tests {
		gotExec, gotArgs := splitCommand(tc.in)
		if gotExec != tc.wantExec {
			t.Errorf("splitCommand(%q) executable = %q; want %q", tc.in, gotExec, tc.wantExec)
		}
		if len(gotArgs) != len(tc.wantArgs) {
			t.Errorf("splitCommand(%q) args = %v; want %v", tc.in, gotArgs, tc.wantArgs)
			continue
		}
		for i := range gotArgs {
			if gotArgs[i] != tc.wantArgs[i] {
				t.Errorf("splitCommand(%q) args[%d] = %q; want %q", tc.in, i, gotArgs[i], tc.wantArgs[i])
			}
		}
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Opened Spotify.", "Opened Spotify."},
		{"surrounding whitespace", "  done \n", "done"},
		{
			"warning line stripped",
			"WARNING: telemetry disabled\nOpened Spotify.",
			"Opened Spotify.",
		},
		{
			"deprecation stripped",
			"DeprecationWarning: old flag\nWarning: slow startup\nPlaying jazz.",
			"Playing jazz.",
		},
		{
			"deprecated mention stripped",
			"this API is deprecated\nSent the message.",
			"Sent the message.",
		},
		{"only noise", "WARNING: nothing else", ""},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanReply(tc.in); got != tc.want {
				t.Errorf("CleanReply(%q) = %q; want %q", tc.in, got, tc.want)
			}
		})
	}
}
