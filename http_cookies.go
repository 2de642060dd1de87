package s2s

import (
	"time"

	"github.com/goliatone/go-router"
)

const (
	AccessTokenCookie  = "ACCESS_TOKEN"
	RefreshTokenCookie = "REFRESH_TOKEN"
)

// CookieOptions are shared by both token cookies
type CookieOptions struct {
	Domain   string
	Path     string
	MaxAge   time.Duration
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// DefaultCookieOptions keeps the cookies usable from the separate client
// origin, hence SameSite=None which in turn needs Secure.
func DefaultCookieOptions(domain string, maxAge time.Duration) CookieOptions {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return CookieOptions{
		Domain:   domain,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HTTPOnly: true,
		SameSite: "None",
	}
}

func (o CookieOptions) set(c router.Context, name, value string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    value,
		Domain:   o.Domain,
		Path:     o.Path,
		MaxAge:   int(o.MaxAge.Seconds()),
		Expires:  time.Now().Add(o.MaxAge),
		HTTPOnly: o.HTTPOnly,
		Secure:   o.Secure,
		SameSite: o.SameSite,
	})
}

func (o CookieOptions) clear(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Domain:   o.Domain,
		Path:     o.Path,
		MaxAge:   -1,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: o.HTTPOnly,
		Secure:   o.Secure,
		SameSite: o.SameSite,
	})
}

// SetTokenCookies writes both session cookies
func (o CookieOptions) SetTokenCookies(c router.Context, pair TokenPair) {
	o.set(c, AccessTokenCookie, pair.AccessToken)
	o.set(c, RefreshTokenCookie, pair.RefreshToken)
}

func (o CookieOptions) ClearTokenCookies(c router.Context) {
	o.clear(c, RefreshTokenCookie)
	o.clear(c, AccessTokenCookie)
}
