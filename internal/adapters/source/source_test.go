package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/livedraft/internal/adapters/source"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const resultsDoc = `{"draftPicks":[
 {"pick":1,"playerId":"P1","playerName":"One","teamId":"T1","bid":45,"time":"2024-03-01T19:00:00Z"},
 {"pick":2,"playerId":"P2","teamId":"T2","bid":3,"time":"2024-03-01T19:01:00Z"}
]}`

func init() {
	_ = logger.Init()
}

var draftID = model.DraftID{LeagueID: "L1", SessionID: "s1"}

func TestHTTPSource(t *testing.T) {
	Convey("Given a provider that serves draft results", t, func() {
		var calls atomic.Int32
		var gotAuth, gotLeague string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			gotAuth = r.Header.Get("Authorization")
			gotLeague = r.URL.Query().Get("leagueId")
			if r.URL.Path != "/getDraftResults" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(resultsDoc))
		}))
		defer srv.Close()

		src, err := source.NewHTTPSource(srv.URL+"/", source.WithAPIKey("secret"))
		So(err, ShouldBeNil)

		Convey("When polling", func() {
			picks, err := src.Picks(context.Background(), draftID)

			Convey("Then the picks are decoded and the request is authenticated", func() {
				So(err, ShouldBeNil)
				So(len(picks), ShouldEqual, 2)
				So(picks[0].PlayerID, ShouldEqual, "P1")
				So(picks[0].Price, ShouldEqual, 45)
				So(picks[1].PlayerName, ShouldEqual, "")
				So(gotAuth, ShouldEqual, "Bearer secret")
				So(gotLeague, ShouldEqual, "L1")
				So(calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a provider that fails twice before answering", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(resultsDoc))
		}))
		defer srv.Close()

		src, err := source.NewHTTPSource(srv.URL,
			source.WithMaxRetries(3),
			source.WithRetryDelays(time.Millisecond, 5*time.Millisecond))
		So(err, ShouldBeNil)

		Convey("When polling", func() {
			picks, err := src.Picks(context.Background(), draftID)

			Convey("Then the retries succeed", func() {
				So(err, ShouldBeNil)
				So(len(picks), ShouldEqual, 2)
				So(calls.Load(), ShouldEqual, 3)
			})
		})
	})

	Convey("Given a provider that rejects the request", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		src, _ := source.NewHTTPSource(srv.URL,
			source.WithMaxRetries(5),
			source.WithRetryDelays(time.Millisecond, time.Millisecond))

		Convey("When polling", func() {
			_, err := src.Picks(context.Background(), draftID)

			Convey("Then it fails once without retrying", func() {
				So(errors.Is(err, source.ErrUnavailable), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a provider that returns garbage", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()
		src, _ := source.NewHTTPSource(srv.URL)

		Convey("Then the failure is transient and names the payload", func() {
			_, err := src.Picks(context.Background(), draftID)
			So(errors.Is(err, source.ErrUnavailable), ShouldBeTrue)
			So(errors.Is(err, source.ErrBadPayload), ShouldBeTrue)
		})
	})

	Convey("Given an invalid base url", t, func() {
		_, err := source.NewHTTPSource("not a url")
		So(err, ShouldNotBeNil)
	})
}

func TestFileSource(t *testing.T) {
	Convey("Given a results file", t, func() {
		path := filepath.Join(t.TempDir(), "results.json")
		So(os.WriteFile(path, []byte(resultsDoc), 0o600), ShouldBeNil)
		src := source.NewFileSource(path)

		Convey("When polling", func() {
			picks, err := src.Picks(context.Background(), draftID)

			Convey("Then the file is decoded", func() {
				So(err, ShouldBeNil)
				So(len(picks), ShouldEqual, 2)
				So(picks[1].Timestamp.Equal(time.Date(2024, 3, 1, 19, 1, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When the file disappears", func() {
			So(os.Remove(path), ShouldBeNil)
			_, err := src.Picks(context.Background(), draftID)

			Convey("Then the poll is transient", func() {
				So(errors.Is(err, source.ErrUnavailable), ShouldBeTrue)
			})
		})
	})
}

func TestFromEvents(t *testing.T) {
	Convey("Given recorded events", t, func() {
		ts := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
		res := source.FromEvents([]model.DraftEvent{{PickNumber: 1, PlayerID: "P1", TeamID: "T1", Price: 9, Timestamp: ts}})

		Convey("Then they render in the provider shape", func() {
			So(len(res.DraftPicks), ShouldEqual, 1)
			So(res.DraftPicks[0].Bid, ShouldEqual, 9)
			So(res.DraftPicks[0].Pick, ShouldEqual, 1)
		})
	})
}
