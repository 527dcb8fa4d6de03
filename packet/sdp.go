package packet

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// ExtensionMapFromSDP derives the extension identifiers from a session
// description by scanning extmap attributes on every media section.
// A session that never negotiated the stream identifier extension yields
// a zero StreamIDExtensionID, which disables tag extraction.
func ExtensionMapFromSDP(desc *sdp.SessionDescription) (ExtensionMap, error) {
	var em ExtensionMap
	for _, media := range desc.MediaDescriptions {
		for _, attr := range media.Attributes {
			if attr.Key != "extmap" {
				continue
			}
			var ext sdp.ExtMap
			if err := ext.Unmarshal(attr.Key + ":" + attr.Value); err != nil {
				return ExtensionMap{}, fmt.Errorf("parse extmap %q: %w", attr.Value, err)
			}
			if ext.URI != nil && ext.URI.String() == StreamIDURI {
				em.StreamIDExtensionID = uint8(ext.Value)
				return em, nil
			}
		}
	}
	return em, nil
}
