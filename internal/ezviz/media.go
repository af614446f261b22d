package ezviz

import (
	"context"
	"fmt"
	"net/http"
)

// FetchImage downloads an alarm snapshot with the session as bearer token.
//
// Parameters:
//   - ctx: Cancels the download (bounded by the image timeout)
//   - url: Absolute picture URL, usually last_alarm_pic
//
// Returns:
//   - []byte: Image bytes on HTTP 200
//   - error: ErrNotFound for an empty URL, ErrNotLoggedIn without a
//     session, ErrRequestFailed for transport errors and non-200 answers
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no image url", ErrNotFound)
	}
	tok := c.Token()
	if !tok.Valid() {
		return nil, ErrNotLoggedIn
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ImageTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+tok.AccessToken()).
		SetHeader("Accept", "*/*").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch image: http %d", ErrRequestFailed, resp.StatusCode())
	}
	return resp.Body(), nil
}
