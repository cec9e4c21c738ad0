package prompts

import (
	"errors"
	"fmt"
	"strings"

	"celebSnap/internal/media"
)

// Scene identifies one of the fixed generation contexts.
type Scene string

const (
	DawnPalace Scene = "DAWN_PALACE"
	NightTower Scene = "NIGHT_TOWER"
)

type sceneInfo struct {
	label       string
	description string
}

var sceneTable = map[Scene]sceneInfo{
	DawnPalace: {
		label:       "Gyeongbokgung Palace at dawn",
		description: "at Gyeongbokgung Palace (Geunjeongjeon), early morning soft light, traditional palace architecture in background",
	},
	NightTower: {
		label:       "N Seoul Tower at night",
		description: "at N Seoul Tower observatory at night, glittering Seoul skyline and city lights in background",
	},
}

// Scenes lists every scene in generation order.
func Scenes() []Scene {
	return []Scene{DawnPalace, NightTower}
}

// Valid reports whether s is a known scene.
func (s Scene) Valid() bool {
	_, ok := sceneTable[s]
	return ok
}

// Label is the human readable scene name.
func (s Scene) Label() string {
	return sceneTable[s].label
}

// Description is the scene clause inserted into the prompt.
func (s Scene) Description() string {
	return sceneTable[s].description
}

// ErrNoReferences is returned when a scene request is built without selfies.
var ErrNoReferences = errors.New("prompts: at least one reference image is required")

// Companion selects who appears next to the uploader.
type Companion string

const (
	BillGates Companion = "billgates"
	Jokers    Companion = "joker"
)

// ErrUnknownCompanion is returned by ParseCompanion for unsupported values.
var ErrUnknownCompanion = errors.New("prompts: unknown companion")

// ParseCompanion reads a form value. Empty selects BillGates.
func ParseCompanion(value string) (Companion, error) {
	switch c := Companion(strings.ToLower(strings.TrimSpace(value))); c {
	case "":
		return BillGates, nil
	case BillGates, Jokers:
		return c, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownCompanion, value)
	}
}

// HasLookAlike reports whether the companion has a real-person and a look-alike variant.
func (c Companion) HasLookAlike() bool {
	return c == BillGates
}

const (
	companionName      = "Bill Gates"
	companionLookAlike = "a Bill Gates look-alike (middle-aged Caucasian male with glasses)"
)

const jokersClause = "PERSON B (left): Joaquin Phoenix as Joker from the 2019 movie - distinctive red suit, green hair, " +
	"white face paint with red smile, thin build, intense eyes, standing on the left side.\n" +
	"PERSON C (right): Heath Ledger as Joker from The Dark Knight - purple suit, messy green hair, " +
	"white face paint with black around eyes and red Glasgow smile scars, standing on the right side.\n" +
	"POSE: All three people are standing close together with arms around each other's shoulders in a warm, friendly group pose. " +
	"PERSON A is in the CENTER between the two Jokers, with one arm around each Joker's shoulder. " +
	"The two Jokers also have their arms around PERSON A's shoulders, creating a tight group embrace.\n"

const jokersCameraClause = "Camera: Natural smartphone photo style, ~35mm equivalent, realistic lighting & shadows, proper hand/finger anatomy. " +
	"All three people should look natural and friendly despite the Jokers' makeup."

const identityClause = "ULTRA-STRICT IDENTITY PRESERVATION: Keep PERSON A's face identity ABSOLUTELY IDENTICAL to the reference photo(s). " +
	"If only one reference photo is provided, maintain the EXACT same face, head pose, gaze direction, facial expression, " +
	"hair style, skin tone, and all facial features WITHOUT ANY MODIFICATIONS. " +
	"If multiple references are provided, analyze ALL images comprehensively to extract the MOST CONSISTENT features. " +
	"CRITICAL EYE PRESERVATION: eye shape, eye color, eyelid structure, eyebrow shape and thickness, eye spacing and gaze direction " +
	"must be IDENTICAL to the reference photo(s). " +
	"Maintain EXACT facial features, bone structure, nose shape, mouth shape, jawline, and any distinctive characteristics. " +
	"For clothing: keep the same style, colors, and type of clothing shown in the reference photo(s) unless the scene requires otherwise."

const cameraClause = "Camera: Natural smartphone photo style, ~35mm equivalent, realistic lighting & shadows, proper hand/finger anatomy, " +
	"casual appropriate outfits for the scene. Both people should look natural and candid."

const closingClause = "ABSOLUTELY NO text overlays, timestamps, location names, or any written elements in the image. " +
	"No borders. Only one image in the result."

// SceneRequest is everything the model client needs for one scene. It is not
// modified after Build returns.
type SceneRequest struct {
	Scene          Scene
	Companion      Companion
	Prompt         string
	FallbackPrompt string
	Likeness       bool
	References     []media.Reference
}

// Build assembles the request for scene with Bill Gates as the companion.
func Build(scene Scene, refs []media.Reference, likeness bool) (SceneRequest, error) {
	return BuildFor(scene, BillGates, refs, likeness)
}

// BuildFor assembles the request for scene and companion using refs as dual
// identity references. When likeness is set and the companion has a look-alike
// variant, the prompt names the real person and FallbackPrompt holds the
// look-alike variant. Otherwise both prompts are equal and Likeness is false.
func BuildFor(scene Scene, companion Companion, refs []media.Reference, likeness bool) (SceneRequest, error) {
	if !scene.Valid() {
		return SceneRequest{}, fmt.Errorf("prompts: unknown scene %q", scene)
	}
	companion, err := ParseCompanion(string(companion))
	if err != nil {
		return SceneRequest{}, err
	}
	if len(refs) == 0 {
		return SceneRequest{}, ErrNoReferences
	}

	likeness = likeness && companion.HasLookAlike()
	fallback := ComposeFor(scene, companion, len(refs), false)
	primary := fallback
	if likeness {
		primary = ComposeFor(scene, companion, len(refs), true)
	}

	return SceneRequest{
		Scene:          scene,
		Companion:      companion,
		Prompt:         primary,
		FallbackPrompt: fallback,
		Likeness:       likeness,
		References:     append([]media.Reference(nil), refs...),
	}, nil
}

// Compose renders the Bill Gates prompt text for a scene.
func Compose(scene Scene, refCount int, likeness bool) string {
	return ComposeFor(scene, BillGates, refCount, likeness)
}

// ComposeFor renders the prompt text for a scene and companion.
func ComposeFor(scene Scene, companion Companion, refCount int, likeness bool) string {
	var b strings.Builder
	if companion == Jokers {
		b.WriteString("Create a single photorealistic candid smartphone photo of THREE people standing together.\n")
		fmt.Fprintf(&b, "%s %s\n", referenceInstruction(refCount), identityClause)
		b.WriteString(jokersClause)
		fmt.Fprintf(&b, "Scene: %s.\n", scene.Description())
		b.WriteString(jokersCameraClause)
		b.WriteString("\n")
		b.WriteString(closingClause)
		return b.String()
	}

	companionText := companionLookAlike
	if likeness {
		companionText = companionName
	}
	b.WriteString("Create a single photorealistic candid smartphone photo of two people.\n")
	fmt.Fprintf(&b, "%s %s\n", referenceInstruction(refCount), identityClause)
	fmt.Fprintf(&b, "PERSON B: %s.\n", companionText)
	fmt.Fprintf(&b, "Scene: %s.\n", scene.Description())
	b.WriteString(cameraClause)
	b.WriteString("\n")
	b.WriteString(closingClause)
	return b.String()
}

func referenceInstruction(refCount int) string {
	switch {
	case refCount <= 1:
		return "PERSON A (center): The same individual shown in the uploaded reference selfie."
	case refCount == 2:
		return "PERSON A (center): The same individual shown in BOTH uploaded reference selfies."
	default:
		return fmt.Sprintf("PERSON A (center): The same individual shown in ALL %d uploaded reference selfies.", refCount)
	}
}
