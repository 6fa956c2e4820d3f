package console

import (
	"bytes"
	"fmt"

	"socialins-backend/pkg/insurance"
)

// Draft is one file picked for upload but not yet submitted. Part and
// Scheme are nullable on purpose: a nil tag means "not classified yet",
// which is a different state from any concrete value. Classification is
// guessed from the filename on creation and can be corrected before
// submission; a draft with either tag still nil blocks the whole batch.
//
// Drafts are the only upload state the caller owns — they exist from
// file selection until a successful submit or an explicit discard.
type Draft struct {
	Filename string
	Part     *string
	Scheme   *string
	Content  []byte
}

// NewDraft creates a draft and pre-fills any tags that can be inferred
// from the filename. Unrecognized parts stay nil.
func NewDraft(filename string, content []byte) *Draft {
	d := &Draft{Filename: filename, Content: content}
	part, scheme := insurance.ClassifyFilename(filename)
	if insurance.ValidPart(part) {
		d.Part = &part
	}
	if insurance.ValidScheme(scheme) {
		d.Scheme = &scheme
	}
	return d
}

// SetPart overrides the part tag.
func (d *Draft) SetPart(part string) error {
	if !insurance.ValidPart(part) {
		return fmt.Errorf("invalid part %q", part)
	}
	d.Part = &part
	return nil
}

// SetScheme overrides the scheme tag.
func (d *Draft) SetScheme(scheme string) error {
	if !insurance.ValidScheme(scheme) {
		return fmt.Errorf("invalid scheme %q", scheme)
	}
	d.Scheme = &scheme
	return nil
}

// Ready reports whether both tags are set.
func (d *Draft) Ready() bool {
	return d.Part != nil && d.Scheme != nil
}

// uploadItem converts a ready draft into its multipart form.
func (d *Draft) uploadItem() UploadItem {
	item := UploadItem{
		Filename: d.Filename,
		Content:  bytes.NewReader(d.Content),
	}
	if d.Part != nil {
		item.Part = *d.Part
	}
	if d.Scheme != nil {
		item.Scheme = *d.Scheme
	}
	return item
}

// firstUnready returns the filename of the first draft with a missing
// tag, or "" when all drafts are submittable.
func firstUnready(drafts []*Draft) string {
	for _, d := range drafts {
		if !d.Ready() {
			return d.Filename
		}
	}
	return ""
}
