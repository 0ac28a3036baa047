package cartstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPSyncer implements Syncer over the cart HTTP API. Transport failures
// are reported as ErrServerUnavailable so the store keeps its optimistic
// local state; HTTP-level rejections are hard errors that roll it back.
type HTTPSyncer struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPSyncer(baseURL, token string) *HTTPSyncer {
	return &HTTPSyncer{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSyncer) FetchCart(testID string) ([]CartQuestion, error) {
	endpoint := s.BaseURL + "/api/cart?testId=" + url.QueryEscape(testID)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cart fetch failed: %s", resp.Status)
	}

	var payload struct {
		Questions []CartQuestion `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

func (s *HTTPSyncer) AddQuestion(questionID int, testID string) error {
	return s.mutate(http.MethodPost, questionID, testID)
}

func (s *HTTPSyncer) RemoveQuestion(questionID int, testID string) error {
	return s.mutate(http.MethodDelete, questionID, testID)
}

func (s *HTTPSyncer) mutate(method string, questionID int, testID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"questionId": questionID,
		"testId":     testID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(method, s.BaseURL+"/api/cart/question", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Message == "" {
		return fmt.Errorf("cart update failed: %s", resp.Status)
	}
	return fmt.Errorf("cart update failed: %s", payload.Message)
}
