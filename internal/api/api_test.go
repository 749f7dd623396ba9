package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicle-network/ledger-go/internal/config"
	"github.com/chronicle-network/ledger-go/internal/core/digest"
	"github.com/chronicle-network/ledger-go/internal/store"
)

const testBase = "http://ledger.test/"

func newTestServer(t *testing.T) (*httptest.Server, *store.FSLedger) {
	t.Helper()
	cfg := config.Config{
		BaseURL:            testBase,
		MaxBodyBytes:       1 << 20,
		MaxAttachmentBytes: 1024,
	}
	ledger, err := store.OpenLedger(t.TempDir(), cfg.MaxAttachmentBytes, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	server := httptest.NewServer(NewRouter(ledger, cfg))
	t.Cleanup(server.Close)
	return server, ledger
}

// noRedirect returns a client that surfaces 3xx responses instead of
// following them.
func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func publishBody(t *testing.T, title string, attachments ...map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"record": map[string]any{
			"title":   title,
			"finding": "A result worth recording.",
			"version": "1.0.0",
		},
	}
	if len(attachments) > 0 {
		body["attachments"] = attachments
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

type publishResponse struct {
	Digest    string `json:"digest"`
	Accession uint64 `json:"accession"`
	Location  string `json:"location"`
}

func publish(t *testing.T, server *httptest.Server, title string, attachments ...map[string]any) (publishResponse, *http.Response) {
	t.Helper()
	resp, err := http.Post(server.URL+"/publications", "application/json",
		bytes.NewReader(publishBody(t, title, attachments...)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed publishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed, resp
}

func TestPostPublication_NovelRecord(t *testing.T) {
	server, _ := newTestServer(t)

	parsed, resp := publish(t, server, "First")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, uint64(1), parsed.Accession)
	assert.Len(t, parsed.Digest, digest.HexLen)
	assert.Equal(t, testBase+"publications/"+parsed.Digest, parsed.Location)
	assert.Equal(t, parsed.Location, resp.Header.Get("Location"))
}

func TestPostPublication_DuplicateIsIdempotent(t *testing.T) {
	server, ledger := newTestServer(t)

	first, firstResp := publish(t, server, "Same content")
	second, secondResp := publish(t, server, "Same content")

	assert.Equal(t, http.StatusCreated, firstResp.StatusCode)
	assert.Equal(t, http.StatusOK, secondResp.StatusCode)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Accession, second.Accession)
	assert.Equal(t, uint64(1), ledger.Count())
}

func TestPostPublication_MalformedRecord(t *testing.T) {
	server, _ := newTestServer(t)

	body := []byte(`{"record":{"title":"missing the rest"}}`)
	resp, err := http.Post(server.URL+"/publications", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "invalid_record")
}

func TestPostPublication_InvalidJSON(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/publications", "application/json",
		strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPublication_JSON(t *testing.T) {
	server, _ := newTestServer(t)
	parsed, _ := publish(t, server, "Readable")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/publications/"+parsed.Digest, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var body struct {
		Digest    string          `json:"digest"`
		Accession uint64          `json:"accession"`
		Record    json.RawMessage `json:"record"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, parsed.Digest, body.Digest)
	assert.Equal(t, parsed.Accession, body.Accession)
	assert.Contains(t, string(body.Record), "Readable")
}

func TestGetPublication_HTML(t *testing.T) {
	server, _ := newTestServer(t)
	parsed, _ := publish(t, server, "Styled")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/publications/"+parsed.Digest, nil)
	req.Header.Set("Accept", "text/html")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "Styled")
}

func TestGetPublication_UnsupportedRepresentation(t *testing.T) {
	server, _ := newTestServer(t)
	parsed, _ := publish(t, server, "Negotiated")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/publications/"+parsed.Digest, nil)
	req.Header.Set("Accept", "application/xml")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestGetPublication_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	unknown := digest.Compute([]byte("never published")).String()
	for _, path := range []string{
		"/publications/" + unknown,
		"/publications/nonexistent",
	} {
		req, _ := http.NewRequest(http.MethodGet, server.URL+path, nil)
		req.Header.Set("Accept", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "path %s", path)
	}
}

func TestPublications_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	parsed, _ := publish(t, server, "Immutable")

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/publications/"+parsed.Digest, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListAccessions_CSVWithCursor(t *testing.T) {
	server, _ := newTestServer(t)

	var digests []string
	for _, title := range []string{"a", "b", "c", "d"} {
		parsed, _ := publish(t, server, title)
		digests = append(digests, parsed.Digest)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/accessions?from=3", nil)
	req.Header.Set("Accept", "text/csv")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 1, "from=3 lists only accession 4")
	assert.Contains(t, lines[0], digests[3])
	assert.NotContains(t, string(raw), digests[2], "the cursor entry itself is excluded")
}

func TestListAccessions_HTML(t *testing.T) {
	server, _ := newTestServer(t)
	parsed, _ := publish(t, server, "Linked")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/accessions", nil)
	req.Header.Set("Accept", "text/html")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), parsed.Location)
}

func TestListAccessions_RSS(t *testing.T) {
	server, _ := newTestServer(t)
	parsed, _ := publish(t, server, "Feed Title")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/accessions", nil)
	req.Header.Set("Accept", "application/rss+xml")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "Feed Title")
	assert.Contains(t, string(raw), parsed.Location)
}

func TestListAccessions_RSSAlias(t *testing.T) {
	server, _ := newTestServer(t)
	publish(t, server, "Aliased")

	resp, err := http.Get(server.URL + "/rss.xml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/rss+xml")
}

func TestListAccessions_UnsupportedRepresentation(t *testing.T) {
	server, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/accessions", nil)
	req.Header.Set("Accept", "application/xml")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestAccessions_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/accessions", "/accessions/1"} {
		req, _ := http.NewRequest(http.MethodDelete, server.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "path %s", path)
	}
}

func TestRedirectAccession(t *testing.T) {
	server, _ := newTestServer(t)

	publish(t, server, "First")
	second, _ := publish(t, server, "Second")

	resp, err := noRedirect().Get(server.URL + "/accessions/2")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, second.Location, resp.Header.Get("Location"))
}

func TestRedirectAccession_OutOfRange(t *testing.T) {
	server, _ := newTestServer(t)
	publish(t, server, "Only one")

	for _, path := range []string{"/accessions/0", "/accessions/2", "/accessions/100", "/accessions/abc"} {
		resp, err := noRedirect().Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "path %s", path)
	}
}

func TestAttachments_RoundTrip(t *testing.T) {
	server, _ := newTestServer(t)

	payload := []byte("ATGC")
	parsed, _ := publish(t, server, "With sequence", map[string]any{
		"filename":  "sequence0.fasta",
		"mediatype": "chemical/fasta",
		"encoding":  "UTF-8",
		"content":   payload, // marshals to base64
	})

	resp, err := http.Get(server.URL + "/publications/" + parsed.Digest + "/attachments/0")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "chemical/fasta", resp.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, payload, raw)

	missing, err := http.Get(server.URL + "/publications/" + parsed.Digest + "/attachments/1")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAttachments_FilenameQuotingInDisposition(t *testing.T) {
	server, _ := newTestServer(t)

	filename := `odd "name".fasta`
	parsed, _ := publish(t, server, "Tricky filename", map[string]any{
		"filename":  filename,
		"mediatype": "chemical/fasta",
		"content":   []byte("ATGC"),
	})

	resp, err := http.Get(server.URL + "/publications/" + parsed.Digest + "/attachments/0")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	disposition := resp.Header.Get("Content-Disposition")
	assert.Equal(t,
		mime.FormatMediaType("inline", map[string]string{"filename": filename}),
		disposition)
	_, params, err := mime.ParseMediaType(disposition)
	require.NoError(t, err, "the header must stay parseable with quotes in the filename")
	assert.Equal(t, filename, params["filename"])
}

func TestTimestamps(t *testing.T) {
	server, ledger := newTestServer(t)
	parsed, _ := publish(t, server, "Anchored")

	base := server.URL + "/publications/" + parsed.Digest + "/timestamps"

	resp, err := http.Get(base)
	require.NoError(t, err)
	var listing struct {
		Timestamps []struct {
			Key string `json:"key"`
		} `json:"timestamps"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	assert.Empty(t, listing.Timestamps, "no proofs yet is an empty listing, not 404")

	d, err := digest.Parse(parsed.Digest)
	require.NoError(t, err)
	require.NoError(t, ledger.Proofs().Put(d, "stamper", []byte("proof bytes")))

	resp, err = http.Get(base)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	require.Len(t, listing.Timestamps, 1)
	assert.Equal(t, "stamper", listing.Timestamps[0].Key)

	resp, err = http.Get(base + "/stamper")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("proof bytes"), raw)

	resp, err = http.Get(base + "/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetKey(t *testing.T) {
	server, ledger := newTestServer(t)

	resp, err := http.Get(server.URL + "/key")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	raw, _ := io.ReadAll(resp.Body)
	decoded, err := hex.DecodeString(string(raw))
	require.NoError(t, err)
	assert.Len(t, decoded, 32, "serves the 32-byte hex public key")
	assert.Equal(t, ledger.Signer().PublicKeyHex(), string(raw))
}

func TestKey_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/key", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
