package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When it is initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When it is initialized with a nil writer", func() {
			err := InitWith(nil, FormatText)

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When it is initialized with an unknown format", func() {
			err := InitWith(&bytes.Buffer{}, Format("xml"))

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWith(&buf, FormatJSON), ShouldBeNil)
		defer func() { _ = Init() }()
		ctx := context.Background()

		Convey("When logging an info message with fields", func() {
			Get().Info(ctx, "batch flushed", String("mode", "beacon"), Int("events", 3), Error(errors.New("boom")))

			Convey("Then the fields appear in the output", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"msg":"batch flushed"`)
				So(out, ShouldContainSubstring, `"mode":"beacon"`)
				So(out, ShouldContainSubstring, `"events":3`)
			})
		})

		Convey("When logging below the configured level", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Debug(ctx, "hidden")
			Get().Info(ctx, "also hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When using a named logger", func() {
			So(SetLevelString("debug"), ShouldBeNil)
			Named("analytics").Debug(ctx, "event", String("name", "page_view"))

			Convey("Then the group name prefixes the fields", func() {
				So(buf.String(), ShouldContainSubstring, `"analytics":{`)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, ok := range []string{"debug", "info", "", "warn", "warning", "error", " INFO "} {
			So(SetLevelString(ok), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}

func TestOrNop(t *testing.T) {
	Convey("Given OrNop", t, func() {
		Convey("Then it never returns nil and never panics", func() {
			l := OrNop()
			So(l, ShouldNotBeNil)
			So(func() {
				l.Named("x").Debug(context.Background(), "noop")
			}, ShouldNotPanic)
		})

		Convey("Then the nop logger swallows everything", func() {
			var n Logger = nopLogger{}
			So(func() {
				n.Info(context.Background(), "a")
				n.Warn(context.Background(), "b")
				n.Error(context.Background(), "c")
			}, ShouldNotPanic)
			So(n.Named("y"), ShouldHaveSameTypeAs, nopLogger{})
		})
	})
}
