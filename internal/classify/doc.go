// Package classify turns an image into an ImageNet-style input frame and a
// logits frame into ranked predictions.
//
// Preprocessing matches the common torchvision recipe: RGB, bilinear resize
// to size x size, scale to [0,1], per-channel mean/std normalization, CHW
// layout, float32 little endian.
package classify
