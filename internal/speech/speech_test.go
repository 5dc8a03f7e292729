package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/roomchat/internal/agentclient"
)

func newOpenAIServer(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var speechReqs []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		speechReqs = append(speechReqs, body)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	})
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "heard: " + string(data)})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &speechReqs
}

func TestOpenAISynthesize(t *testing.T) {
	srv, reqs := newOpenAIServer(t)
	o := NewOpenAI("", option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"), option.WithMaxRetries(0))

	audio, err := o.Synthesize(context.Background(), "Hello there.")
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(audio))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, "tts-1", req["model"])
	assert.Equal(t, "nova", req["voice"])
	assert.Equal(t, "Hello there.", req["input"])
}

func TestOpenAITranscribe(t *testing.T) {
	srv, _ := newOpenAIServer(t)
	o := NewOpenAI("alloy", option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"), option.WithMaxRetries(0))

	text, err := o.Transcribe(context.Background(), strings.NewReader("a rug"), "clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "heard: a rug", text)
}

func TestSelect(t *testing.T) {
	agent := agentclient.New("http://localhost:8000")

	svc, err := Select("", agent, "", "")
	require.NoError(t, err)
	assert.Same(t, agent, svc)

	_, err = Select(ProviderOpenAI, agent, "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	svc, err = Select(ProviderOpenAI, agent, "sk-test", "")
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, svc)

	_, err = Select("espeak", agent, "", "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
