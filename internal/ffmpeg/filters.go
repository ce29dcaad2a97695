package ffmpeg

import (
	"strings"

	"github.com/tfells/capsize/internal/hardware"
)

// sdrTonemap converts HDR transfer curves to BT.709 SDR. The output is
// always 8-bit yuv420p, so HDR sources must be tone-mapped or the picture
// washes out into gray.
const sdrTonemap = "zscale=t=linear:npl=100,tonemap=hable:desat=0,zscale=p=bt709:t=bt709:m=bt709:r=tv"

// filterChain accumulates -vf entries in order.
type filterChain struct {
	filters []string
}

func (c *filterChain) add(filter string) {
	if filter != "" {
		c.filters = append(c.filters, filter)
	}
}

func (c *filterChain) empty() bool {
	return len(c.filters) == 0
}

func (c *filterChain) build() string {
	return strings.Join(c.filters, ",")
}

// videoFilterArgs returns the pixel format and filter flags for the encode.
// VAAPI needs frames converted and uploaded to the device; everything else
// takes a plain -pix_fmt unless tone-mapping forces a filter graph.
func videoFilterArgs(p *EncodeParams) []string {
	var chain filterChain
	if p.IsHDR {
		chain.add(sdrTonemap)
	}

	if p.Encoder == hardware.Vaapi {
		chain.add("format=nv12")
		chain.add("hwupload")
		return []string{"-vf", chain.build()}
	}

	if chain.empty() {
		return []string{"-pix_fmt", "yuv420p"}
	}
	chain.add("format=yuv420p")
	return []string{"-vf", chain.build()}
}
