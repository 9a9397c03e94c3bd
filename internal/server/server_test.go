package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tandemcode/tandem/internal/app"
	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/internal/server"
	"github.com/tandemcode/tandem/pkg/types"
)

var _ = Describe("HTTP API", func() {
	var (
		a       *app.App
		ts      *httptest.Server
		workDir string
	)

	newBundle := func(cfg *types.Config) {
		var err error
		workDir = GinkgoT().TempDir()
		a, err = app.New(context.Background(), cfg, app.Options{
			WorkDir: workDir,
			DataDir: GinkgoT().TempDir(),
		})
		Expect(err).NotTo(HaveOccurred())
		ts = httptest.NewServer(server.New(nil, a).Router())
	}

	BeforeEach(func() {
		newBundle(&types.Config{
			Provider: map[string]types.ProviderConfig{"mock": {}},
			Watcher:  &types.WatcherConfig{Disabled: true},
		})
	})

	AfterEach(func() {
		ts.Close()
		a.Shutdown()
	})

	do := func(method, path string, body any) (*http.Response, []byte) {
		GinkgoHelper()
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req, err := http.NewRequest(method, ts.URL+path, &buf)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var out bytes.Buffer
		_, err = out.ReadFrom(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, out.Bytes()
	}

	decode := func(raw []byte, into any) {
		GinkgoHelper()
		Expect(json.Unmarshal(raw, into)).To(Succeed())
	}

	createSession := func(title string) *types.Session {
		GinkgoHelper()
		resp, raw := do("POST", "/session", server.CreateSessionRequest{Title: title})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var sess types.Session
		decode(raw, &sess)
		return &sess
	}

	textBody := func(text string) server.ChatBody {
		return server.ChatBody{Parts: types.Parts{&types.TextPart{Text: text}}}
	}

	Describe("GET /app", func() {
		It("reports version and workspace root", func() {
			resp, raw := do("GET", "/app", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var info server.AppInfo
			decode(raw, &info)
			Expect(info.Version).To(Equal(server.Version))
			Expect(info.Root).To(Equal(workDir))
		})
	})

	Describe("GET /config", func() {
		It("returns the resolved configuration", func() {
			resp, raw := do("GET", "/config", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var cfg types.Config
			decode(raw, &cfg)
			Expect(cfg.Provider).To(HaveKey("mock"))
		})
	})

	Describe("GET /config/providers", func() {
		It("lists providers with a default model each", func() {
			resp, raw := do("GET", "/config/providers", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var providers server.ProvidersResponse
			decode(raw, &providers)
			Expect(providers.Providers).To(HaveLen(1))
			Expect(providers.Providers[0].ID).To(Equal("mock"))
			Expect(providers.Providers[0].Models).NotTo(BeEmpty())
			Expect(providers.Default).To(HaveKeyWithValue("mock", "echo"))
		})
	})

	Describe("session lifecycle", func() {
		It("creates, lists and deletes sessions", func() {
			first := createSession("")
			Expect(first.ID).To(HavePrefix("ses_"))
			Expect(first.Title).To(Equal("New Session"))

			second := createSession("Custom title")
			Expect(second.Title).To(Equal("Custom title"))

			resp, raw := do("GET", "/session", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var sessions []*types.Session
			decode(raw, &sessions)
			Expect(sessions).To(HaveLen(2))
			Expect(sessions[0].ID).To(Equal(second.ID), "newest first")

			resp, raw = do("DELETE", "/session/"+first.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(string(raw))).To(Equal("true"))

			resp, _ = do("GET", "/session/"+first.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("404s on unknown sessions with the error envelope", func() {
			resp, raw := do("GET", "/session/ses_missing", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var envelope server.ErrorResponse
			decode(raw, &envelope)
			Expect(envelope.Error.Code).To(Equal(server.ErrCodeNotFound))
		})

		It("reports false when aborting an idle session", func() {
			sess := createSession("Abort probe")
			resp, raw := do("POST", "/session/"+sess.ID+"/abort", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(string(raw))).To(Equal("false"))
		})
	})

	Describe("POST /session/{id}/message", func() {
		It("runs a turn and returns the final assistant message", func() {
			sess := createSession("Echo probe")

			resp, raw := do("POST", "/session/"+sess.ID+"/message", textBody("hi"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var assistant types.Message
			decode(raw, &assistant)
			Expect(assistant.Role).To(Equal(types.RoleAssistant))
			Expect(assistant.TextContent()).To(Equal("HI"))
			Expect(assistant.Assistant).NotTo(BeNil())
			Expect(assistant.Assistant.FinishReason).To(Equal(types.FinishEndTurn))

			resp, raw = do("GET", "/session/"+sess.ID+"/message", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var messages []*types.Message
			decode(raw, &messages)
			Expect(messages).To(HaveLen(3))
			Expect(messages[0].Role).To(Equal(types.RoleSystem))
			Expect(messages[1].Role).To(Equal(types.RoleUser))
			Expect(messages[2].ID).To(Equal(assistant.ID))
		})

		It("rejects a body without parts", func() {
			sess := createSession("Bad body probe")
			resp, raw := do("POST", "/session/"+sess.ID+"/message", server.ChatBody{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var envelope server.ErrorResponse
			decode(raw, &envelope)
			Expect(envelope.Error.Code).To(Equal(server.ErrCodeInvalidRequest))
		})

		It("409s while a turn is in flight", func() {
			sess := createSession("Busy probe")

			mock, err := a.Providers.Get("mock")
			Expect(err).NotTo(HaveOccurred())
			m := mock.(*provider.Mock)
			m.Delay = 30 * time.Millisecond

			slow := []provider.Delta{{Kind: provider.DeltaStart}, {Kind: provider.DeltaStepStart}}
			for i := 0; i < 10; i++ {
				slow = append(slow, provider.Delta{Kind: provider.DeltaText, Text: "x"})
			}
			usage := &types.TokenUsage{}
			slow = append(slow,
				provider.Delta{Kind: provider.DeltaStepFinish, Usage: usage, Reason: types.FinishEndTurn},
				provider.Delta{Kind: provider.DeltaFinish, Usage: usage, Reason: types.FinishEndTurn},
			)
			m.Rescript(slow)

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				resp, _ := do("POST", "/session/"+sess.ID+"/message", textBody("slow"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			}()

			Eventually(func() bool {
				return a.Engine.Busy(sess.ID)
			}).WithTimeout(2 * time.Second).Should(BeTrue())

			resp, raw := do("POST", "/session/"+sess.ID+"/message", textBody("too soon"))
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			var envelope server.ErrorResponse
			decode(raw, &envelope)
			Expect(envelope.Error.Code).To(Equal(server.ErrCodeBusy))

			resp, raw = do("POST", "/session/"+sess.ID+"/abort", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(string(raw))).To(Equal("true"))

			Eventually(done).WithTimeout(2 * time.Second).Should(BeClosed())
		})
	})

	Describe("sharing", func() {
		It("round-trips a share token", func() {
			sess := createSession("Share probe")

			resp, raw := do("POST", "/session/"+sess.ID+"/share", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var shared types.Session
			decode(raw, &shared)
			Expect(shared.Share).NotTo(BeNil())
			Expect(shared.Share.Token).To(HavePrefix("shr_"))

			resp, raw = do("DELETE", "/session/"+sess.ID+"/share", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var unshared types.Session
			decode(raw, &unshared)
			Expect(unshared.Share).To(BeNil())
		})

		It("shares new sessions automatically when configured", func() {
			ts.Close()
			a.Shutdown()
			newBundle(&types.Config{
				Share:    "auto",
				Provider: map[string]types.ProviderConfig{"mock": {}},
				Watcher:  &types.WatcherConfig{Disabled: true},
			})

			sess := createSession("")
			Expect(sess.Share).NotTo(BeNil())
			Expect(sess.Share.Token).To(HavePrefix("shr_"))
		})
	})

	Describe("files", func() {
		It("serves raw file content", func() {
			Expect(os.WriteFile(filepath.Join(workDir, "hello.txt"), []byte("hello world"), 0o644)).To(Succeed())

			resp, raw := do("GET", "/file?path=hello.txt", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var content server.FileContent
			decode(raw, &content)
			Expect(content.Type).To(Equal("raw"))
			Expect(content.Content).To(Equal("hello world"))
		})

		It("rejects paths escaping the workspace", func() {
			resp, _ := do("GET", "/file?path=../../etc/passwd", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("404s on missing files", func() {
			resp, _ := do("GET", "/file?path=nope.txt", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("reports an empty status outside a repository", func() {
			resp, raw := do("GET", "/file/status", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(string(raw))).To(Equal("[]"))
		})
	})

	Describe("search", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(filepath.Join(workDir, "notes.txt"), []byte("the needle is here\n"), 0o644)).To(Succeed())
		})

		It("finds file content", func() {
			resp, raw := do("GET", "/find?pattern=needle", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result server.TextSearchResponse
			decode(raw, &result)
			Expect(result.Matches).To(HaveLen(1))
			Expect(result.Matches[0].File).To(Equal("notes.txt"))
		})

		It("requires a pattern", func() {
			resp, _ := do("GET", "/find", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("finds files by fuzzy name", func() {
			resp, raw := do("GET", "/find/file?query=notes", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var files []string
			decode(raw, &files)
			Expect(files).To(ContainElement("notes.txt"))
		})
	})

	Describe("permissions", func() {
		It("rejects unknown replies", func() {
			resp, _ := do("POST", "/permission/per_x", map[string]string{"reply": "maybe"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("accepts a valid reply", func() {
			resp, raw := do("POST", "/permission/per_x", map[string]string{"reply": "reject"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(string(raw))).To(Equal("true"))
		})
	})

	Describe("GET /event", func() {
		It("streams bus events in the {type, properties} envelope", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/event", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

			reader := bufio.NewReader(resp.Body)
			readEvent := func() (string, string) {
				GinkgoHelper()
				var event, data string
				for {
					line, err := reader.ReadString('\n')
					Expect(err).NotTo(HaveOccurred())
					line = strings.TrimRight(line, "\n")
					switch {
					case strings.HasPrefix(line, "event: "):
						event = strings.TrimPrefix(line, "event: ")
					case strings.HasPrefix(line, "data: "):
						data = strings.TrimPrefix(line, "data: ")
					case line == "" && event != "":
						return event, data
					}
				}
			}

			event, _ := readEvent()
			Expect(event).To(Equal("server.connected"))

			a.Bus.Publish(bus.Event{
				Type: bus.SessionIdle,
				Data: bus.SessionIdleData{SessionID: "ses_probe"},
			})

			event, data := readEvent()
			Expect(event).To(Equal("session.idle"))

			var envelope struct {
				Type       string `json:"type"`
				Properties struct {
					SessionID string `json:"sessionID"`
				} `json:"properties"`
			}
			Expect(json.Unmarshal([]byte(data), &envelope)).To(Succeed())
			Expect(envelope.Type).To(Equal("session.idle"))
			Expect(envelope.Properties.SessionID).To(Equal("ses_probe"))
		})
	})
})
