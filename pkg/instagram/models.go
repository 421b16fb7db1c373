package instagram

import "encoding/json"

// The profile response is decoded one level at a time so that a drifted
// or missing branch only loses what sits below it.

type dataDoc struct {
	User json.RawMessage `json:"user"`
}

type userDoc struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Timeline json.RawMessage `json:"edge_owner_to_timeline_media"`
}

type timelineDoc struct {
	Count int               `json:"count"`
	Edges []json.RawMessage `json:"edges"`
}

type edgeDoc struct {
	Node json.RawMessage `json:"node"`
}

// nodeDoc is one timeline item. The identifying fields must decode; the
// rest are kept raw and read one by one, so a drifted optional field only
// loses itself.
type nodeDoc struct {
	ID               string          `json:"id"`
	Shortcode        string          `json:"shortcode"`
	DisplayURL       string          `json:"display_url"`
	IsVideo          json.RawMessage `json:"is_video"`
	VideoURL         json.RawMessage `json:"video_url"`
	TakenAtTimestamp json.RawMessage `json:"taken_at_timestamp"`
	Caption          json.RawMessage `json:"edge_media_to_caption"`
	LikedBy          json.RawMessage `json:"edge_liked_by"`
	PreviewLike      json.RawMessage `json:"edge_media_preview_like"`
}

type captionDoc struct {
	Edges []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	} `json:"edges"`
}

type countDoc struct {
	Count *int `json:"count"`
}

// loginResponse is the body returned by the login endpoint
type loginResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          bool   `json:"user"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	TwoFactor     bool   `json:"two_factor_required"`
	Checkpoint    string `json:"checkpoint_url"`
}
