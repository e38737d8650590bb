package i18n

import "github.com/gin-gonic/gin"

const ginKey = "i18n.localizer"

// Middleware attaches a Localizer chosen from Accept-Language (or ?lang=).
func Middleware(c *Catalog) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var langs []string
		if q := ctx.Query("lang"); q != "" {
			langs = append(langs, q)
		}
		if h := ctx.GetHeader("Accept-Language"); h != "" {
			langs = append(langs, h)
		}
		ctx.Set(ginKey, c.Localizer(langs...))
		ctx.Next()
	}
}

// From returns the request's Localizer. A nil Localizer renders message ids.
func From(ctx *gin.Context) *Localizer {
	if v, ok := ctx.Get(ginKey); ok {
		if z, ok := v.(*Localizer); ok {
			return z
		}
	}
	return nil
}
