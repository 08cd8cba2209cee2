package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/convtrack/internal/app/scan"
	"github.com/okian/convtrack/pkg/logger"
)

func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lighthouse")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestToolResolution(t *testing.T) {
	convey.Convey("Missing tools are reported as not found", t, func() {
		convey.Convey("a Lighthouse binary that is not on PATH", func() {
			_, err := NewLighthouse("convtrack-no-such-lighthouse")
			convey.So(errors.Is(err, scan.ErrToolNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("a CHROME_PATH that does not exist", func() {
			t.Setenv(EnvChromePath, filepath.Join(t.TempDir(), "chrome"))
			_, err := ResolveChrome()
			convey.So(errors.Is(err, scan.ErrToolNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("an axe-core script that does not exist", func() {
			_, err := NewRodAuditor(filepath.Join(t.TempDir(), "axe.min.js"))
			convey.So(errors.Is(err, scan.ErrToolNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("an empty axe-core script path", func() {
			_, err := NewRodAuditor("")
			convey.So(errors.Is(err, scan.ErrToolNotFound), convey.ShouldBeTrue)
		})
	})

	convey.Convey("CHROME_PATH wins over discovery", t, func() {
		chrome := filepath.Join(t.TempDir(), "chrome")
		convey.So(os.WriteFile(chrome, nil, 0o700), convey.ShouldBeNil)
		t.Setenv(EnvChromePath, chrome)
		got, err := ResolveChrome()
		convey.So(err, convey.ShouldBeNil)
		convey.So(got, convey.ShouldEqual, chrome)
	})
}

func TestLighthouseReport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	convey.Convey("Given a Lighthouse CLI", t, func() {
		lh := func(bin string) *Lighthouse {
			return &Lighthouse{bin: bin, chrome: "/usr/bin/chromium", log: logger.OrNop()}
		}

		convey.Convey("its stdout is the report", func() {
			out, err := lh(script(t, `echo "{\"url\":\"$1\",\"chrome\":\"$CHROME_PATH\"}"`)).Report(context.Background(), "https://site.test")
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(out), convey.ShouldContainSubstring, `"url":"https://site.test"`)
			convey.So(string(out), convey.ShouldContainSubstring, `"chrome":"/usr/bin/chromium"`)
		})

		convey.Convey("a failing run carries the last stderr line", func() {
			_, err := lh(script(t, "echo starting >&2; echo 'Unable to connect to Chrome' >&2; exit 1")).Report(context.Background(), "https://site.test")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "Unable to connect to Chrome")
		})
	})
}
