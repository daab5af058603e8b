package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"ChatSync/tools/errs"

	"github.com/gin-gonic/gin"
)

// context key
const CtxAuthKey = "authorization" // string

type Options struct {
	// Token the caller must present. Empty disables the check.
	Token string
	// 读取哪个请求头，默认 "Authorization"
	Header string
	// websocket clients cannot set headers from a browser, allow ?access_token=
	AllowQuery bool
}

func DefaultOptions(token string) *Options {
	return &Options{
		Token:      token,
		Header:     "Authorization",
		AllowQuery: true,
	}
}

// BearerToken extracts the token from "Bearer xxx"; a bare value is accepted as is.
func BearerToken(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > len("bearer ") && strings.EqualFold(v[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(v[len("bearer "):])
	}
	return v
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions("")
	}
	if opts.Header == "" {
		opts.Header = "Authorization"
	}
	return func(c *gin.Context) {
		if opts.Token == "" {
			c.Next()
			return
		}
		token := BearerToken(c.GetHeader(opts.Header))
		if token == "" && opts.AllowQuery {
			token = c.Query("access_token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(opts.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}
		c.Set(CtxAuthKey, token)
		c.Next()
	}
}
