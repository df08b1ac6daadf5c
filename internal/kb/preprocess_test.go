package kb

import "testing"

func TestPrepareMarkdown(t *testing.T) {
	src := "## 售后政策\n\n1. **保修**两年\n- 上门服务\n\n```\nignored code\n```\n| a | b |\n| --- | --- |\n|  | c |\n"
	got := string(PrepareMarkdown([]byte(src)))
	want := "售后政策\n\n保修两年\n\n上门服务\n\na b\n\nc\n"
	if got != want {
		t.Fatalf("PrepareMarkdown mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestPrepareMarkdown_Empty(t *testing.T) {
	if out := PrepareMarkdown([]byte("\n\n|---|---|\n")); out != nil {
		t.Fatalf("want nil, got %q", out)
	}
}
