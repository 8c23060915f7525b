// Command oplplay loads an IMF music stream (and optionally an ADL sound
// effect to layer on top) and plays it through the default audio backend.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	opl "github.com/opltools/opl-go"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 44100, "output mixer sample rate")
		imfPath    = flag.String("imf", "", "path to an IMF register-write stream")
		adlPath    = flag.String("adl", "", "optional path to an ADL sound effect to layer over the music")
		volume     byte
	)
	flag.Func("volume", "channel 0 expression volume write, 0-63 (default: leave instrument as authored)", func(s string) error {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return err
		}
		volume = byte(v)
		return nil
	})
	flag.Parse()

	if *imfPath == "" {
		log.Fatal("-imf is required")
	}

	imfData, err := loadIMF(*imfPath)
	if err != nil {
		log.Fatalf("load imf: %v", err)
	}

	dev := opl.New()
	if err := dev.Init(*sampleRate, 0, 0); err != nil {
		log.Fatalf("init device: %v", err)
	}
	defer dev.Close()

	if err := dev.PlayIMF(imfData); err != nil {
		log.Fatalf("play imf: %v", err)
	}
	fmt.Printf("playing %s (%d bytes) at %d Hz\n", *imfPath, len(imfData), *sampleRate)

	if *adlPath != "" {
		adlData, err := os.ReadFile(*adlPath)
		if err != nil {
			log.Fatalf("read adl: %v", err)
		}
		dev.OnAdlFinished(func() { fmt.Println("adl effect finished") })
		if err := dev.PlayADL(adlData); err != nil {
			log.Fatalf("play adl: %v", err)
		}
		fmt.Printf("layering adl effect %s (%d bytes)\n", *adlPath, len(adlData))
	}

	if volume != 0 {
		dev.WriteReg(0x40, 0x3f&^volume)
	}

	for dev.IsIMFPlaying() {
		time.Sleep(250 * time.Millisecond)
	}
}

// loadIMF reads an IMF file, stripping the 2-byte little-endian length
// prefix some shipping files carry when the remaining payload's length is
// a multiple of 4 but the raw file's isn't.
func loadIMF(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) >= 2 && len(data)%4 != 0 {
		prefixLen := binary.LittleEndian.Uint16(data[:2])
		rest := data[2:]
		if uint16(len(rest)) == prefixLen || len(rest)%4 == 0 {
			return rest, nil
		}
	}
	return data, nil
}
