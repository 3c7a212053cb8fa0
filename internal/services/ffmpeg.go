package services

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Thin exec wrappers around ffmpeg/ffprobe for stitching, filtering and
// voiceover mixing. Every command runs under the caller's context.
// ---------------------------------------------------------------------------

// Output normalization used when segments from different providers are
// concatenated: each input is scaled and padded into one canvas.
const (
	outputWidth  = 1280
	outputHeight = 720
	videoFPS     = 30
	audioRate    = 44100
)

// styleFilters maps a style name to its colour grading filter chain.
var styleFilters = map[string]string{
	"cinematic":   "eq=brightness=0.06:saturation=1.3:gamma=1.1,unsharp=3:3:1.5",
	"commercial":  "eq=brightness=0.1:saturation=1.4:contrast=1.1",
	"testimonial": "eq=brightness=0.05:contrast=1.05:saturation=1.1",
	"polished":    "eq=brightness=0.08:saturation=1.2:contrast=1.1,unsharp=5:5:1",
	"natural":     "eq=brightness=0:contrast=1:saturation=1",
}

const (
	neutralStyleFilter = "eq=brightness=0:contrast=1:saturation=1"
	// SmoothingFilter interpolates frames to a steady 30fps.
	SmoothingFilter = "minterpolate=fps=30:mi_mode=blend"
	// ObjectConsistencyFilter reduces temporal noise and flicker between frames.
	ObjectConsistencyFilter = "hqdn3d=1.5:1.5:6:6,deflicker=size=5"
)

// StyleFilter returns the grading filter for a style, neutral for unknown styles.
func StyleFilter(style string) string {
	if f, ok := styleFilters[strings.ToLower(strings.TrimSpace(style))]; ok {
		return f
	}
	return neutralStyleFilter
}

// AudioMix describes how narration is fitted onto a visual track.
type AudioMix struct {
	LoopVideo bool    // narration is longer: loop the video up to TargetSec
	LoopAudio bool    // narration is shorter: loop/trim the narration to TargetSec
	TargetSec float64 // final output length
	FadeSec   float64 // fade applied at the audio splice boundaries
}

// FFmpegService shells out to the ffmpeg and ffprobe binaries on PATH.
type FFmpegService struct{}

func NewFFmpegService() *FFmpegService {
	return &FFmpegService{}
}

func (s *FFmpegService) run(ctx context.Context, label string, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w (%s)", label, err, truncate(strings.TrimSpace(stderr.String()), 500))
	}
	return nil
}

// ApplyFilter re-encodes input through a -vf filter chain, copying audio.
func (s *FFmpegService) ApplyFilter(ctx context.Context, inputPath, outputPath, filter string) error {
	log.Printf("[FFmpeg] Applying filter %q to %s", filter, filepath.Base(inputPath))

	return s.run(ctx, "filter",
		"-i", inputPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-y",
		outputPath,
	)
}

// ConcatInput is one clip to stitch and whether it carries an audio stream.
type ConcatInput struct {
	Path        string
	HasAudio    bool
	DurationSec float64
}

// buildConcatArgs builds a concat filter graph that normalizes every clip and
// gives each one an audio stream, synthesizing silence where a clip has none,
// so no clip's audio is lost and the streams line up.
func buildConcatArgs(inputs []ConcatInput, outputPath string) []string {
	var args []string
	for _, in := range inputs {
		args = append(args, "-i", in.Path)
	}

	// Silent sources for clips without audio come after the real inputs.
	silentIndex := make(map[int]int)
	next := len(inputs)
	for i, in := range inputs {
		if in.HasAudio {
			continue
		}
		dur := in.DurationSec
		if dur <= 0 {
			dur = 1
		}
		args = append(args,
			"-f", "lavfi",
			"-t", fmt.Sprintf("%.3f", dur),
			"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", audioRate),
		)
		silentIndex[i] = next
		next++
	}

	var graph strings.Builder
	for i, in := range inputs {
		fmt.Fprintf(&graph,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=yuv420p[v%d];",
			i, outputWidth, outputHeight, outputWidth, outputHeight, videoFPS, i)

		audioSrc := i
		if !in.HasAudio {
			audioSrc = silentIndex[i]
		}
		fmt.Fprintf(&graph, "[%d:a]aresample=%d,aformat=channel_layouts=stereo[a%d];", audioSrc, audioRate, i)
	}
	for i := range inputs {
		fmt.Fprintf(&graph, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&graph, "concat=n=%d:v=1:a=1[outv][outa]", len(inputs))

	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y",
		outputPath,
	)
	return args
}

// Concatenate stitches clips in the given order into outputPath.
func (s *FFmpegService) Concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	inputs := make([]ConcatInput, 0, len(clipPaths))
	for _, path := range clipPaths {
		hasAudio, err := s.HasAudio(ctx, path)
		if err != nil {
			return err
		}
		dur, err := s.ProbeDuration(ctx, path)
		if err != nil {
			return err
		}
		inputs = append(inputs, ConcatInput{Path: path, HasAudio: hasAudio, DurationSec: dur})
	}

	log.Printf("[FFmpeg] Concatenating %d clips into %s", len(inputs), filepath.Base(outputPath))
	return s.run(ctx, "concatenate", buildConcatArgs(inputs, outputPath)...)
}

// buildMixArgs builds the ffmpeg arguments for fitting narration onto video.
func buildMixArgs(videoPath, audioPath, outputPath string, mix AudioMix) []string {
	var args []string
	if mix.LoopVideo {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", videoPath)
	if mix.LoopAudio {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", audioPath)

	target := fmt.Sprintf("%.3f", mix.TargetSec)
	audioFilter := "anull"
	if mix.FadeSec > 0 && mix.TargetSec > 2*mix.FadeSec {
		audioFilter = fmt.Sprintf("afade=t=in:st=0:d=%.3f,afade=t=out:st=%.3f:d=%.3f",
			mix.FadeSec, mix.TargetSec-mix.FadeSec, mix.FadeSec)
	}

	args = append(args,
		"-map", "0:v",
		"-map", "1:a",
		"-af", audioFilter,
		"-t", target,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y",
		outputPath,
	)
	return args
}

// MixVoiceover replaces the video's audio with narration fitted per mix.
func (s *FFmpegService) MixVoiceover(ctx context.Context, videoPath, audioPath, outputPath string, mix AudioMix) error {
	log.Printf("[FFmpeg] Mixing voiceover (loopVideo=%v, loopAudio=%v, target=%.2fs)", mix.LoopVideo, mix.LoopAudio, mix.TargetSec)
	return s.run(ctx, "voiceover mix", buildMixArgs(videoPath, audioPath, outputPath, mix)...)
}

// ProbeDuration returns the duration of a media file in seconds using ffprobe.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// HasAudio reports whether the file has at least one audio stream.
func (s *FFmpegService) HasAudio(ctx context.Context, path string) (bool, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe streams failed: %w", err)
	}
	return strings.TrimSpace(string(output)) != "", nil
}
