package provision

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Job is one bulk group-creation request. Jobs are never persisted; a job
// exists only for the duration of one streamed response.
type Job struct {
	TenantID    string
	BaseName    string
	StartIndex  int
	Count       int
	AdminNumber string
	Description string
	ImageData   string // base64 payload, optionally with a data-URL prefix
	ImageName   string
}

// ParseName splits a requested name into base name and starting number. A
// numeric trailing token becomes the start index; otherwise the whole string
// is the base and numbering starts at 1. "Team 5" starts at 5, "Team" at 1.
func ParseName(name string) (string, int) {
	parts := strings.Fields(name)
	if len(parts) >= 2 {
		if start, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			return strings.Join(parts[:len(parts)-1], " "), start
		}
	}
	return strings.TrimSpace(name), 1
}

// NewJob builds a job from request fields, resolving the base name and start
// index from the requested name.
func NewJob(tenantID, name string, count int, adminNumber, description, imageData, imageName string) Job {
	base, start := ParseName(name)
	return Job{
		TenantID:    tenantID,
		BaseName:    base,
		StartIndex:  start,
		Count:       count,
		AdminNumber: strings.TrimSpace(adminNumber),
		Description: description,
		ImageData:   imageData,
		ImageName:   imageName,
	}
}

// GroupName returns the name of the i-th group in the job, i in [0, Count).
func (j Job) GroupName(i int) string {
	return fmt.Sprintf("%s %d", j.BaseName, j.StartIndex+i)
}

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-zA-Z]+;base64,`)

// DecodeImage decodes a base64 image payload, tolerating a data-URL header.
func DecodeImage(data string) ([]byte, error) {
	raw := dataURLPrefix.ReplaceAllString(data, "")
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return img, nil
}

var nonDigits = regexp.MustCompile(`[^\d]`)

// NormalizeContact reduces a contact string to its digits. The result is the
// canonical numeric identifier used for every platform addressing operation.
func NormalizeContact(contact string) string {
	return nonDigits.ReplaceAllString(contact, "")
}
