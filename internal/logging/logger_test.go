package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelsAreFiltered(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, "node", false).WithLogLevel(WARN)

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("shown warn")
	l.Errorf("shown %s", "error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Messages below WARN should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN|node] shown warn") {
		t.Errorf("Expected the warning to be logged, got %q", out)
	}
	if !strings.Contains(out, "[ERROR|node] shown error") {
		t.Errorf("Expected the error to be logged, got %q", out)
	}
}

func TestDefaultLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, "node", false)
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestWithPostfix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, "node-1", false).WithPostfix("mtx").WithPostfix("trace")
	l.Info("hello")
	if !strings.Contains(buf.String(), "[INFO|node-1|mtx|trace] hello") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestFileOnlyDoesNotEcho(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	lf, err := NewLogFile(path, DefaultMaxBytes, DefaultBackups)
	if err != nil {
		t.Fatal(err)
	}
	l := NewLogger(&buf, lf, "node", true)
	l.Info("only in file")
	lf.Close()

	if buf.Len() != 0 {
		t.Errorf("Expected nothing on the console, got %q", buf.String())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "only in file") {
		t.Errorf("Expected the line in the file, got %q", content)
	}
}

func TestLogFileRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	lf, err := NewLogFile(path, 20, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"aaaaaaaaaaaaaaa\n", "bbbbbbbbbbbbbbb\n", "ccccccccccccccc\n", "ddddddddddddddd\n"} {
		lf.Print(line)
	}
	lf.Close()

	expect := map[string]string{
		path:        "ddddddddddddddd\n",
		path + ".1": "ccccccccccccccc\n",
		path + ".2": "bbbbbbbbbbbbbbb\n",
	}
	for file, want := range expect {
		got, err := os.ReadFile(file)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s: expected %q, got %q", file, want, got)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("Only two backups should be kept")
	}
}
