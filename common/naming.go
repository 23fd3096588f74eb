package common

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SceneFormat defines the kind of Sentinel-2 scene identifier
type SceneFormat int

const (
	UnknownFormat SceneFormat = iota
	EarthEngineIndex          // YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_Txxxxx
	SafeProduct               // MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Discriminator>.SAFE
)

var eeIndexRegexp = regexp.MustCompile(`^\d{8}T\d{6}_\d{8}T\d{6}_T\d{2}[A-Z]{3}$`)

// GetSceneFormat returns the format of the scene identifier
func GetSceneFormat(sceneID string) SceneFormat {
	if eeIndexRegexp.MatchString(sceneID) {
		return EarthEngineIndex
	}
	if strings.HasPrefix(sceneID, "S2") {
		return SafeProduct
	}
	return UnknownFormat
}

// GetDateFromSceneID returns the sensing date of the scene
func GetDateFromSceneID(sceneID string) (time.Time, error) {
	format, err := Info(sceneID)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("20060102T150405", format["DATE"]+"T"+format["TIME"])
}

// Info parses the scene identifier
func Info(sceneID string) (map[string]string, error) {
	switch GetSceneFormat(sceneID) {
	case EarthEngineIndex:
		// 20190108T104429_20190108T124859_T32UNF
		return map[string]string{
			"SCENE":           sceneID,
			"DATE":            sceneID[0:8],
			"YEAR":            sceneID[0:4],
			"MONTH":           sceneID[4:6],
			"DAY":             sceneID[6:8],
			"TIME":            sceneID[9:15],
			"HOUR":            sceneID[9:11],
			"MINUTE":          sceneID[11:13],
			"SECOND":          sceneID[13:15],
			"GENERATION_DATE": sceneID[16:24],
			"GENERATION_TIME": sceneID[25:31],
			"TILE":            sceneID[32:38],
			"LATITUDE_BAND":   sceneID[33:35],
			"GRID_SQUARE":     sceneID[35:36],
			"GRANULE_ID":      sceneID[36:38],
		}, nil
	case SafeProduct:
		if len(sceneID) < len("MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Disc.>") || sceneID[10] != '_' {
			return nil, fmt.Errorf("invalid Sentinel2 product name: %s", sceneID)
		}
		return map[string]string{
			"SCENE":           sceneID,
			"MISSION_ID":      sceneID[0:3],
			"MISSION_VERSION": sceneID[2:3],
			"PRODUCT_LEVEL":   sceneID[7:10],
			"DATE":            sceneID[11:19],
			"YEAR":            sceneID[11:15],
			"MONTH":           sceneID[15:17],
			"DAY":             sceneID[17:19],
			"TIME":            sceneID[20:26],
			"HOUR":            sceneID[20:22],
			"MINUTE":          sceneID[22:24],
			"SECOND":          sceneID[24:26],
			"PDGS":            sceneID[28:32],
			"ORBIT":           sceneID[34:37],
			"TILE":            sceneID[38:44],
			"LATITUDE_BAND":   sceneID[39:41],
			"GRID_SQUARE":     sceneID[41:42],
			"GRANULE_ID":      sceneID[42:44],
		}, nil
	}
	return nil, fmt.Errorf("Info: unsupported scene identifier %s", sceneID)
}
