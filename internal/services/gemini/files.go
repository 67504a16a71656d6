package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// pollRequestTimeout bounds each individual status check, not the loop.
const pollRequestTimeout = 30 * time.Second

// fileHandle identifies an uploaded file on the Gemini side.
type fileHandle struct {
	Name string // e.g. "files/abc123", used for status checks and deletion
	URI  string // passed to generateContent as fileUri
}

// fileMetadata is the File API's representation of an uploaded file.
type fileMetadata struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	State    string `json:"state"` // PROCESSING, ACTIVE, FAILED
	MimeType string `json:"mimeType"`
}

// uploadFile pushes a media file through the resumable upload protocol:
// a start request that yields an upload URL, then a single PUT carrying
// the bytes with an "upload, finalize" command.
func (c *Client) uploadFile(ctx context.Context, filePath, mimeType string) (*fileHandle, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}
	log.Printf("🤖 Uploading %.2f MB (%s) to Gemini", float64(len(data))/1024/1024, mimeType)

	startBody, err := json.Marshal(map[string]any{
		"file": map[string]string{"display_name": filepath.Base(filePath)},
	})
	if err != nil {
		return nil, err
	}

	startURL := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	startReq, err := http.NewRequestWithContext(ctx, http.MethodPost, startURL, bytes.NewReader(startBody))
	if err != nil {
		return nil, err
	}
	startReq.Header.Set("Content-Type", "application/json")
	startReq.Header.Set("X-Goog-Upload-Protocol", "resumable")
	startReq.Header.Set("X-Goog-Upload-Command", "start")
	startReq.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	startReq.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	startResp, err := c.httpClient.Do(startReq)
	if err != nil {
		return nil, fmt.Errorf("%w: upload start: %v", ErrBackendUnavailable, err)
	}
	io.Copy(io.Discard, startResp.Body)
	startResp.Body.Close()
	if startResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upload start returned %d", ErrBackendUnavailable, startResp.StatusCode)
	}

	uploadURL := startResp.Header.Get("x-goog-upload-url")
	if uploadURL == "" {
		return nil, fmt.Errorf("%w: no upload URL in start response", ErrBackendUnavailable)
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	putReq.Header.Set("Content-Type", mimeType)
	putReq.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	putReq.Header.Set("X-Goog-Upload-Offset", "0")
	putReq.ContentLength = int64(len(data))

	putResp, err := c.httpClient.Do(putReq)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %v", ErrBackendUnavailable, err)
	}
	defer putResp.Body.Close()

	respBody, err := io.ReadAll(putResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %v", ErrBackendUnavailable, err)
	}
	if putResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upload returned %d: %s", ErrBackendUnavailable, putResp.StatusCode, excerpt(string(respBody)))
	}

	var result struct {
		File fileMetadata `json:"file"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: bad upload response: %v", ErrBackendUnavailable, err)
	}
	if result.File.Name == "" || result.File.URI == "" {
		return nil, fmt.Errorf("%w: upload response missing file handle", ErrBackendUnavailable)
	}

	log.Printf("🤖 Upload complete: %s (state=%s)", result.File.Name, result.File.State)
	return &fileHandle{Name: result.File.Name, URI: result.File.URI}, nil
}

// waitForProcessing polls the uploaded file until it becomes ACTIVE.
//
// The loop tolerates transient garbage: non-JSON bodies and transport
// errors count toward a consecutive-error budget of five, and a clean
// poll resets the budget. A 404 is terminal (the handle is gone), FAILED
// is terminal, and exhausting all attempts is a timeout.
func (c *Client) waitForProcessing(ctx context.Context, fileName string) error {
	consecutiveErrors := 0

	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		state, err := c.checkFileState(ctx, fileName)
		if err != nil {
			if errors.Is(err, ErrFileNotFound) {
				return err
			}
			consecutiveErrors++
			log.Printf("⚠️  File status check failed (attempt %d/%d): %v", attempt, c.maxPollAttempts, err)
			if consecutiveErrors >= 5 {
				return fmt.Errorf("%w: repeated status-check failures: %v", ErrBackendUnavailable, err)
			}
			if !sleepCtx(ctx, c.pollInterval) {
				return ctx.Err()
			}
			continue
		}
		consecutiveErrors = 0

		switch state {
		case "ACTIVE":
			return nil
		case "FAILED":
			return ErrMediaProcessingFailed
		}

		if attempt%5 == 0 {
			log.Printf("🤖 File %s still %s (attempt %d/%d)", fileName, state, attempt, c.maxPollAttempts)
		}
		if !sleepCtx(ctx, c.pollInterval) {
			return ctx.Err()
		}
	}

	return ErrProcessingTimeout
}

// checkFileState performs one status poll.
func (c *Client) checkFileState(ctx context.Context, fileName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pollRequestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, fileName, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status check returned %d", resp.StatusCode)
	}

	var meta fileMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("non-JSON status response: %s", excerpt(string(body)))
	}
	return meta.State, nil
}

// deleteFile removes an uploaded file. Best effort: failures are logged
// and swallowed, Gemini expires stale files on its own anyway.
func (c *Client) deleteFile(fileName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, fileName, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("⚠️  Failed to delete Gemini file %s: %v", fileName, err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	log.Printf("🤖 Deleted Gemini file %s", fileName)
}

// sleepCtx sleeps for d unless the context ends first. Returns false when
// the context was canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
