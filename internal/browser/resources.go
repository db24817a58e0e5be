package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceAliases maps CDP resource types to configuration names.
var resourceAliases = map[string]string{
	"image":      "images",
	"font":       "fonts",
	"media":      "media",
	"stylesheet": "stylesheets",
}

// blockList is the set of configured resource names to refuse.
type blockList map[string]bool

func newBlockList(types []string) blockList {
	bl := make(blockList, len(types))
	for _, t := range types {
		bl[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return bl
}

// blocks reports whether a request of the given CDP resource type is refused.
// Documents are never blocked; a surface always gets its page.
func (bl blockList) blocks(resType string) bool {
	lower := strings.ToLower(resType)
	if lower == "document" {
		return false
	}
	if alias, ok := resourceAliases[lower]; ok {
		return bl[alias]
	}
	return bl[lower]
}

// applyResourceBlocking intercepts page requests and fails the blocked ones.
// The returned router must be stopped when the page closes.
func applyResourceBlocking(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	bl := newBlockList(types)

	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		if bl.blocks(string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()

	return router, nil
}
