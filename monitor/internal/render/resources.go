package render

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources aborts requests whose resource type is listed in types
// (images, fonts, media, stylesheets) and lets everything else through.
func blockResources(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blockSet, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

func shouldBlock(blockSet map[string]bool, resType proto.NetworkResourceType) bool {
	switch resType {
	case proto.NetworkResourceTypeImage:
		return blockSet["images"]
	case proto.NetworkResourceTypeFont:
		return blockSet["fonts"]
	case proto.NetworkResourceTypeMedia:
		return blockSet["media"]
	case proto.NetworkResourceTypeStylesheet:
		return blockSet["stylesheets"]
	}
	return blockSet[strings.ToLower(string(resType))]
}
