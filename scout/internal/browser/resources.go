package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceFilter decides which requests a page may issue. Result pages only
// need the document and its scripts; images and fonts just cost time.
type resourceFilter map[proto.NetworkResourceType]bool

// configNames maps config spellings to CDP resource types.
var configNames = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"image":       proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"font":        proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
	"stylesheet":  proto.NetworkResourceTypeStylesheet,
	"ping":        proto.NetworkResourceTypePing,
}

func newResourceFilter(names []string) resourceFilter {
	f := make(resourceFilter, len(names))
	for _, n := range names {
		if t, ok := configNames[strings.ToLower(strings.TrimSpace(n))]; ok {
			f[t] = true
		}
	}
	return f
}

func (f resourceFilter) blocks(t proto.NetworkResourceType) bool {
	// Never block the document or scripts: client-rendered lists need both.
	if t == proto.NetworkResourceTypeDocument || t == proto.NetworkResourceTypeScript {
		return false
	}
	return f[t]
}

// applyResourceBlocking hijacks every request on page and fails the ones the
// filter blocks.
func applyResourceBlocking(page *rod.Page, names []string) error {
	filter := newResourceFilter(names)
	if len(filter) == 0 {
		return nil
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if filter.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}

	go router.Run()
	return nil
}
