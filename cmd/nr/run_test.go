package main

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/ui"
)

// fakeClient records the last invocation and replies with a canned response.
type fakeClient struct {
	last *model.Invocation
	resp *model.Response
	err  error
}

func (f *fakeClient) Dispatch(_ context.Context, inv *model.Invocation) (*model.Response, error) {
	f.last = inv
	return f.resp, f.err
}
func (f *fakeClient) Health(context.Context) (string, error) { return "ok", nil }
func (f *fakeClient) Close() error                           { return nil }

func withFakeClient(t *testing.T, resp *model.Response) *fakeClient {
	t.Helper()
	ui.ForceNoColor()
	fc := &fakeClient{resp: resp}
	prevClient, prevID, prevRoles, prevJSON := commandClient, principalID, principalRoles, jsonOutput
	commandClient = fc
	principalID = "100"
	principalRoles = []string{"Visa Officer"}
	jsonOutput = false
	t.Cleanup(func() {
		commandClient, principalID, principalRoles, jsonOutput = prevClient, prevID, prevRoles, prevJSON
	})
	return fc
}

func findSugar(t *testing.T, name string) *cobra.Command {
	t.Helper()
	for _, c := range sugarCommands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("no sugar command %q", name)
	return nil
}

func TestSugarBuildsInvocationArgs(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		want []string
	}{
		{"visa", []string{"<@42>"}, []string{"done", "<@42>"}},
		{"badge", nil, nil},
		{"badge", []string{"42"}, []string{"42"}},
		{"kick", []string{"42"}, []string{"42"}},
		{"kick", []string{"42", "spamming", "links"}, []string{"42", "spamming links"}},
		{"addrole", []string{"42", "Moderator"}, []string{"42", "Moderator"}},
		{"cmdlist", nil, nil},
	} {
		t.Run(tc.name+"/"+strings.Join(tc.args, "_"), func(t *testing.T) {
			fc := withFakeClient(t, &model.Response{Kind: model.KindSuccess, Text: "ok"})
			cmd := findSugar(t, tc.name)
			var out bytes.Buffer
			cmd.SetOut(&out)

			if err := cmd.RunE(cmd, tc.args); err != nil {
				t.Fatalf("RunE: %v", err)
			}
			if fc.last.Command != tc.name {
				t.Errorf("command = %q, want %q", fc.last.Command, tc.name)
			}
			if len(fc.last.Args) != 0 || len(tc.want) != 0 {
				if !reflect.DeepEqual(fc.last.Args, tc.want) {
					t.Errorf("args = %q, want %q", fc.last.Args, tc.want)
				}
			}
			if fc.last.Principal.ID != "100" || !fc.last.Principal.HasRole("Visa Officer") {
				t.Errorf("principal = %+v", fc.last.Principal)
			}
			if !strings.HasPrefix(fc.last.ID, "inv-") {
				t.Errorf("invocation id = %q, want inv- prefix", fc.last.ID)
			}
		})
	}
}

func TestSugarCoversEveryServiceCommand(t *testing.T) {
	if len(sugarOrder) != len(sugarTable) {
		t.Fatalf("sugarOrder has %d entries, sugarTable %d", len(sugarOrder), len(sugarTable))
	}
	for _, name := range sugarOrder {
		if _, ok := sugarTable[name]; !ok {
			t.Errorf("sugarOrder names %q with no table entry", name)
		}
	}
}

func TestRunPrintsReplyAndFailsOnRefusal(t *testing.T) {
	fc := withFakeClient(t, &model.Response{Kind: model.KindDenied, Text: "🚫 You don't have permission to use this command."})
	var out bytes.Buffer
	runCmd.SetOut(&out)

	err := runCmd.RunE(runCmd, []string{"deletebadge", "<@42>"})
	var re *responseError
	if !errors.As(err, &re) || re.kind != model.KindDenied {
		t.Fatalf("err = %v, want denied responseError", err)
	}
	if !strings.Contains(out.String(), "don't have permission") {
		t.Errorf("output = %q", out.String())
	}
	if fc.last.Command != "deletebadge" || !reflect.DeepEqual(fc.last.Args, []string{"<@42>"}) {
		t.Errorf("invocation = %+v", fc.last)
	}
}

func TestRunTransportError(t *testing.T) {
	fc := withFakeClient(t, nil)
	fc.err = errors.New("connection refused")

	err := runCmd.RunE(runCmd, []string{"badge"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestPrintResponse(t *testing.T) {
	ui.ForceNoColor()
	t.Cleanup(func() { jsonOutput = false })

	t.Run("success", func(t *testing.T) {
		var out bytes.Buffer
		err := printResponse(&out, &model.Response{Kind: model.KindSuccess, Text: "🎖 <@42> Badge ID: **NR-00001**"})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if out.String() != "🎖 <@42> Badge ID: **NR-00001**\n" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("silent", func(t *testing.T) {
		var out bytes.Buffer
		err := printResponse(&out, &model.Response{Kind: model.KindUnknownCommand, Silent: true})
		if err == nil {
			t.Fatal("expected error for unknown command")
		}
		if !strings.Contains(out.String(), "no reply: unknown_command") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		defer func() { jsonOutput = false }()
		var out bytes.Buffer
		err := printResponse(&out, &model.Response{Kind: model.KindNotFound, Text: "❌ No badge found."})
		if err == nil {
			t.Fatal("expected error for not_found")
		}
		if !strings.Contains(out.String(), `"kind": "not_found"`) {
			t.Errorf("output = %q", out.String())
		}
	})
}

func TestPrintBadgesTable(t *testing.T) {
	ui.ForceNoColor()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	err := printBadgesTable(&out, []*model.BadgeRecord{
		{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: at},
		{MemberID: "43", BadgeID: "NR-00002", RegisteredAt: at},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"BADGE", "NR-00001", "NR-00002", "43", "2 badge(s)"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}

	out.Reset()
	if err := printBadgesTable(&out, nil); err != nil {
		t.Fatal(err)
	}
	if out.String() != "no badges issued\n" {
		t.Errorf("empty output = %q", out.String())
	}
}

func TestPrintWatchLine(t *testing.T) {
	ui.ForceNoColor()
	at := time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC)

	var out bytes.Buffer
	printWatchLine(&out, at, "nari.badge.approved", []byte(`{"record":{"member_id":"42","badge_id":"NR-00007"},"actor":"100"}`))
	got := out.String()
	for _, want := range []string{"12:30:05", "nari.badge.approved", "member=42", "badge=NR-00007", "by=100"} {
		if !strings.Contains(got, want) {
			t.Errorf("line missing %q: %q", want, got)
		}
	}

	out.Reset()
	printWatchLine(&out, at, "nari.role.added", []byte(`{"member_id":"42","role":"Moderator"}`))
	if !strings.Contains(out.String(), "role=Moderator") {
		t.Errorf("line = %q", out.String())
	}
}
