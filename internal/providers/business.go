package providers

import (
	"context"
	"net/url"

	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

// BusinessClient implements every business service over one HTTP API.
type BusinessClient struct {
	httpClient
}

func NewBusinessClient(apiBase, apiKey string) *BusinessClient {
	return &BusinessClient{httpClient: newHTTPClient("business", apiBase, apiKey)}
}

func (c *BusinessClient) user(userID string) string { return "/users/" + url.PathEscape(userID) }

func (c *BusinessClient) get(ctx context.Context, path string) (*router.BusinessResult, error) {
	var out router.BusinessResult
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BusinessClient) post(ctx context.Context, path string, body any) (*router.BusinessResult, error) {
	var out router.BusinessResult
	if err := c.postJSON(ctx, path, body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BusinessClient) Reorder(ctx context.Context, userID string) (*router.BusinessResult, error) {
	return c.post(ctx, c.user(userID)+"/orders/reorder", struct{}{})
}

func (c *BusinessClient) CancelOrder(ctx context.Context, userID, orderID string) (*router.BusinessResult, error) {
	return c.post(ctx, c.user(userID)+"/orders/cancel", map[string]string{"orderId": orderID})
}

func (c *BusinessClient) RequestRefund(ctx context.Context, userID, orderID, reason string) (*router.BusinessResult, error) {
	return c.post(ctx, c.user(userID)+"/orders/refund", map[string]string{"orderId": orderID, "reason": reason})
}

func (c *BusinessClient) Balance(ctx context.Context, userID string) (*router.BusinessResult, error) {
	return c.get(ctx, c.user(userID)+"/wallet")
}

func (c *BusinessClient) Points(ctx context.Context, userID string) (*router.BusinessResult, error) {
	return c.get(ctx, c.user(userID)+"/loyalty")
}

func (c *BusinessClient) ConvertToWallet(ctx context.Context, userID string) (*router.BusinessResult, error) {
	return c.post(ctx, c.user(userID)+"/loyalty/convert", struct{}{})
}

func (c *BusinessClient) List(ctx context.Context, userID string) (*router.BusinessResult, error) {
	return c.get(ctx, c.user(userID)+"/wishlist")
}

func (c *BusinessClient) Add(ctx context.Context, userID, item string) (*router.BusinessResult, error) {
	return c.post(ctx, c.user(userID)+"/wishlist", map[string]string{"item": item})
}

// Services returns the client as the router's service bundle.
func (c *BusinessClient) Services() router.Services {
	return router.Services{Orders: c, Wallet: c, Loyalty: c, Wishlist: c}
}

var (
	_ router.OrderService    = (*BusinessClient)(nil)
	_ router.WalletService   = (*BusinessClient)(nil)
	_ router.LoyaltyService  = (*BusinessClient)(nil)
	_ router.WishlistService = (*BusinessClient)(nil)
)
