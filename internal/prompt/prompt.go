// Package prompt builds the recognition request sent to the vision model.
package prompt

import (
	_ "embed"
	"strings"

	"github.com/example/cardscan/internal/imageloader"
)

//go:embed instruction.txt
var instructionAsset string

var instruction = strings.TrimSpace(instructionAsset)

// Instruction returns the fixed recognition instruction.
func Instruction() string { return instruction }

// Request is one user turn: the instruction followed by the card image.
// It has no exported fields and cannot be changed after Build.
type Request struct {
	instruction string
	image       imageloader.Image
}

// Build attaches img to the fixed instruction.
func Build(img imageloader.Image) Request {
	return Request{instruction: instruction, image: img}
}

// Instruction returns the fixed extraction instruction sent with every image.
func (r Request) Instruction() string { return r.instruction }

// Image returns the image the request was built from.
func (r Request) Image() imageloader.Image { return r.image }

// ImageDataURL returns the image as data:{mediaType};base64,{payload}.
func (r Request) ImageDataURL() string { return r.image.DataURL() }
