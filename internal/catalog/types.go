package catalog

// ytdlpInfo mirrors the fields of yt-dlp --dump-json output that we use.
type ytdlpInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Duration float64       `json:"duration"`
	Formats  []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	URL            string  `json:"url"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"` // kbit/s
	ABR            float64 `json:"abr"`
	VBR            float64 `json:"vbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

func (f ytdlpFormat) videoOnly() bool {
	return hasCodec(f.VCodec) && !hasCodec(f.ACodec)
}

func (f ytdlpFormat) audioOnly() bool {
	return hasCodec(f.ACodec) && !hasCodec(f.VCodec)
}

func hasCodec(c string) bool {
	return c != "" && c != "none"
}
