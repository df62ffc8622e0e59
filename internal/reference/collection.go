package reference

// Set is an insertion-ordered set of references keyed by URL.
type Set struct {
	refs  []Reference
	index map[string]struct{}
}

// Add inserts ref unless its URL is already present.
func (s *Set) Add(ref Reference) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[ref.URL]; ok {
		return false
	}
	s.index[ref.URL] = struct{}{}
	s.refs = append(s.refs, ref)
	return true
}

// Merge adds every reference and returns how many were new.
func (s *Set) Merge(refs []Reference) int {
	added := 0
	for _, r := range refs {
		if s.Add(r) {
			added++
		}
	}
	return added
}

func (s *Set) Contains(url string) bool {
	_, ok := s.index[url]
	return ok
}

// Remove deletes the reference with the given URL.
func (s *Set) Remove(url string) bool {
	if _, ok := s.index[url]; !ok {
		return false
	}
	delete(s.index, url)
	for i, r := range s.refs {
		if r.URL == url {
			s.refs = append(s.refs[:i], s.refs[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAt deletes the reference at display position i.
func (s *Set) RemoveAt(i int) bool {
	if i < 0 || i >= len(s.refs) {
		return false
	}
	return s.Remove(s.refs[i].URL)
}

func (s *Set) Len() int { return len(s.refs) }

// Items returns a copy of the references in first-seen order.
func (s *Set) Items() []Reference {
	if len(s.refs) == 0 {
		return nil
	}
	return append([]Reference(nil), s.refs...)
}

func (s *Set) Reset() {
	s.refs = nil
	s.index = nil
}

// Ingest reports the outcome of merging one extraction.
type Ingest struct {
	// Matched counts distinct URLs found in the text.
	Matched int `json:"matched"`
	// Added counts references that were not already accumulated, across both kinds.
	Added        int `json:"added"`
	AddedContent int `json:"added_content"`
	AddedImage   int `json:"added_image"`
}

// NoMatches distinguishes "nothing looked like a URL" from "everything was a duplicate".
func (i Ingest) NoMatches() bool { return i.Matched == 0 }

// Collection accumulates the content and image references of one draft.
// It is not safe for concurrent use.
type Collection struct {
	content Set
	image   Set
}

func NewCollection() *Collection { return &Collection{} }

// Ingest extracts references from text and unions them into the collection.
func (c *Collection) Ingest(text string) Ingest {
	return c.Merge(Extract(text))
}

// Merge unions an extraction into the collection.
func (c *Collection) Merge(e Extraction) Ingest {
	res := Ingest{Matched: len(e.Content)}
	res.AddedContent = c.content.Merge(e.Content)
	res.AddedImage = c.image.Merge(e.Image)
	res.Added = res.AddedContent + res.AddedImage
	return res
}

// Restore replaces the collection contents, e.g. from a saved draft.
func (c *Collection) Restore(content, image []Reference) {
	c.Reset()
	for _, r := range content {
		c.content.Add(Reference{URL: r.URL, Kind: Content})
	}
	for _, r := range image {
		c.image.Add(Reference{URL: r.URL, Kind: Image})
	}
}

func (c *Collection) Remove(kind Kind, url string) bool {
	if kind == Image {
		return c.image.Remove(url)
	}
	return c.content.Remove(url)
}

func (c *Collection) RemoveAt(kind Kind, i int) bool {
	if kind == Image {
		return c.image.RemoveAt(i)
	}
	return c.content.RemoveAt(i)
}

func (c *Collection) Reset() {
	c.content.Reset()
	c.image.Reset()
}

func (c *Collection) Content() []Reference { return c.content.Items() }
func (c *Collection) Image() []Reference   { return c.image.Items() }
