package vault

import (
	"strings"
)

func validateAttachmentKey(key string) error {
	if key == "" || strings.Contains(key, ".") {
		return ErrInvalidAttachmentKey
	}
	return nil
}

// entryAttachments resolves an entry's references against the table.
// References to missing slots are skipped.
func entryAttachments(e *Entry, binaries []Binary) []EntryAttachment {
	out := make([]EntryAttachment, 0, len(e.Binaries))
	for _, ref := range e.Binaries {
		if ref.Index < 0 || ref.Index >= len(binaries) {
			continue
		}
		out = append(out, EntryAttachment{
			Key:  ref.Key,
			Data: append([]byte(nil), binaries[ref.Index].Data...),
		})
	}
	return out
}

// Attachments returns every attachment of an entry in reference order.
func (d *Database) Attachments(entryID string) ([]EntryAttachment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _, err := d.findEntry(entryID)
	if err != nil {
		return nil, err
	}
	return entryAttachments(e, d.tree.Binaries), nil
}

// Attachment returns the content of one named attachment.
func (d *Database) Attachment(entryID, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _, err := d.findEntry(entryID)
	if err != nil {
		return nil, err
	}
	for _, a := range entryAttachments(e, d.tree.Binaries) {
		if a.Key == key {
			return a.Data, nil
		}
	}
	return nil, ErrAttachmentNotFound
}

// AddAttachment appends data to the attachment table and binds it to key on
// the entry, replacing any previous binding of the same key. The previous
// slot stays in the table.
func (d *Database) AddAttachment(entryID, key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := validateAttachmentKey(key); err != nil {
		return err
	}
	e, _, err := d.findEntry(entryID)
	if err != nil {
		return err
	}

	idx := len(d.tree.Binaries)
	d.tree.Binaries = append(d.tree.Binaries, Binary{Data: append([]byte(nil), data...)})

	for i := range e.Binaries {
		if e.Binaries[i].Key == key {
			e.Binaries[i].Index = idx
			return nil
		}
	}
	e.Binaries = append(e.Binaries, BinaryRef{Key: key, Index: idx})
	return nil
}

// DeleteAttachment removes the entry's reference to key. The table slot is
// neither removed nor renumbered, so other references stay valid.
// Deleting an unknown key succeeds.
func (d *Database) DeleteAttachment(entryID, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _, err := d.findEntry(entryID)
	if err != nil {
		return err
	}
	for i := range e.Binaries {
		if e.Binaries[i].Key == key {
			e.Binaries = append(e.Binaries[:i], e.Binaries[i+1:]...)
			break
		}
	}
	return nil
}

// AttachmentCount returns the size of the attachment table, including
// slots no longer referenced.
func (d *Database) AttachmentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tree.Binaries)
}
