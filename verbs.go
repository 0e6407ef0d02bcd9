package authclient

import (
	"context"
	"net/http"
)

// Get sends a GET to path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodGet, path, nil))
}

// Delete sends a DELETE to path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, path, nil))
}

func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

func (c *Client) PutJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body)
}

func (c *Client) PatchJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// DoJSON sends req and decodes a successful body into out. A decode failure
// is returned with the response.
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := resp.JSON(out); err != nil {
			return resp, &Error{
				Kind:    KindStatus,
				Status:  resp.Status,
				Message: "decode response: " + err.Error(),
				Body:    resp.Body,
				Err:     err,
			}
		}
	}
	return resp, nil
}
