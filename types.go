package spacetraveling

// apiPostsResponse is the JSON body of GET /api/posts. It mirrors the CMS
// search response so clients can page through it the same way.
type apiPostsResponse struct {
	Page     int       `json:"page"`
	NextPage *string   `json:"next_page"`
	Results  []apiPost `json:"results"`
}

type apiPost struct {
	UID                  string      `json:"uid"`
	FirstPublicationDate *string     `json:"first_publication_date"`
	Data                 apiPostData `json:"data"`
}

type apiPostData struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
}
