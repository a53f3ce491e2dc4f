package synthesis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"voicecoach/internal/stt"
)

const (
	DefaultGTTSBaseURL = "https://translate.google.com"
	// MaxChunkRunes is the longest text the translate_tts endpoint accepts per call.
	MaxChunkRunes = 100
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

// GTTS speaks through the public Google Translate TTS endpoint. Long text
// is split into chunks and the returned MP3 segments are concatenated.
type GTTS struct {
	baseURL    string
	httpClient *http.Client
	observer   ObserverFunc
}

func NewGTTS(baseURL string, httpClient *http.Client, observer ObserverFunc) *GTTS {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGTTSBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GTTS{baseURL: baseURL, httpClient: httpClient, observer: observer}
}

func (g *GTTS) Name() string { return "gtts" }

func (g *GTTS) Synthesize(ctx context.Context, text string, lang stt.Language, w io.Writer) error {
	chunks := Chunk(text, MaxChunkRunes)
	if len(chunks) == 0 {
		return fmt.Errorf("no text to speak")
	}
	for idx, chunk := range chunks {
		if err := g.fetch(ctx, chunk, lang, idx, len(chunks), w); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", idx+1, len(chunks), err)
		}
	}
	return nil
}

func (g *GTTS) fetch(ctx context.Context, chunk string, lang stt.Language, idx, total int, w io.Writer) (err error) {
	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("client", "tw-ob")
	query.Set("tl", string(lang))
	query.Set("q", chunk)
	query.Set("total", strconv.Itoa(total))
	query.Set("idx", strconv.Itoa(idx))
	query.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_tts?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	started := time.Now()
	statusCode := 0
	defer func() {
		if g.observer != nil {
			g.observer("gtts_translate_tts", statusCode, time.Since(started))
		}
	}()

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return nil
}

// Chunk splits text on whitespace into pieces of at most max runes. A
// single word longer than max is cut at rune boundaries.
func Chunk(text string, max int) []string {
	var (
		chunks  []string
		current strings.Builder
		runes   int
	)
	flush := func() {
		if runes > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			runes = 0
		}
	}

	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		for n > max {
			flush()
			r := []rune(word)
			chunks = append(chunks, string(r[:max]))
			word = string(r[max:])
			n -= max
		}
		if n == 0 {
			continue
		}
		if runes > 0 && runes+1+n > max {
			flush()
		}
		if runes > 0 {
			current.WriteByte(' ')
			runes++
		}
		current.WriteString(word)
		runes += n
	}
	flush()
	return chunks
}
