// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inference

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImageFile decodes any format registered with the image package.
func DecodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// resizeFrame scales img to a size x size RGBA frame using the metadata's
// resize strategy.
func resizeFrame(img image.Image, meta *Metadata) *image.RGBA {
	size := meta.ImageSize
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	src := img.Bounds()
	if meta.Resize == ResizeShortestEdgeCrop {
		src = centerCropSource(src)
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// centerCropSource returns the centered square of bounds. Scaling the short
// edge to S and cropping S x S from the center keeps exactly this square.
func centerCropSource(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return bounds
	}
	short := w
	if h < short {
		short = h
	}
	x0 := bounds.Min.X + (w-short)/2
	y0 := bounds.Min.Y + (h-short)/2
	return image.Rect(x0, y0, x0+short, y0+short)
}

// writeCHW writes one frame into dst as planar R, G, B values rescaled to
// [0,1] and normalized with the metadata mean and std. dst must hold
// 3*size*size values.
func writeCHW(dst []float32, frame *image.RGBA, meta *Metadata) {
	size := meta.ImageSize
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := frame.RGBAAt(x, y)
			i := y*size + x
			dst[i] = (float32(c.R)/255 - meta.Mean[0]) / meta.Std[0]
			dst[plane+i] = (float32(c.G)/255 - meta.Mean[1]) / meta.Std[1]
			dst[2*plane+i] = (float32(c.B)/255 - meta.Mean[2]) / meta.Std[2]
		}
	}
}

// PreprocessImage fills dst with a [1,3,S,S] tensor for one image.
func PreprocessImage(dst []float32, img image.Image, meta *Metadata) error {
	want := 3 * meta.ImageSize * meta.ImageSize
	if len(dst) < want {
		return fmt.Errorf("input tensor holds %d values, need %d", len(dst), want)
	}
	writeCHW(dst[:want], resizeFrame(img, meta), meta)
	return nil
}

// PreprocessClip fills dst with a [1,T,3,S,S] tensor. frames must already hold
// exactly meta.NumFrames images.
func PreprocessClip(dst []float32, frames []image.Image, meta *Metadata) error {
	if len(frames) != meta.NumFrames {
		return fmt.Errorf("clip has %d frames, model expects %d", len(frames), meta.NumFrames)
	}
	per := 3 * meta.ImageSize * meta.ImageSize
	if len(dst) < per*len(frames) {
		return fmt.Errorf("input tensor holds %d values, need %d", len(dst), per*len(frames))
	}
	for t, f := range frames {
		writeCHW(dst[t*per:(t+1)*per], resizeFrame(f, meta), meta)
	}
	return nil
}
