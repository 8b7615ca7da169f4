// Package api provides the REST API server for gba2xm
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/gba2xm/pkg/converter"
	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/xm"
)

// MaxUploadSize caps uploaded ROM and module files. Cartridges top out at 32 MiB.
const MaxUploadSize = 32 << 20

// @title gba2xm API
// @version 1.0
// @description API for locating GBA music banks and converting them to extended modules
// @host localhost:8080
// @BasePath /api/v1

// StartServer starts the API server on the specified port
func StartServer(port int, trackerName string) error {
	return NewRouter(trackerName).Run(fmt.Sprintf(":%d", port))
}

// NewRouter builds the engine with every route registered
func NewRouter(trackerName string) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = MaxUploadSize

	h := &handler{trackerName: trackerName}

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", listFormats)
		v1.POST("/scan", h.handleScan)
		v1.POST("/inspect", h.handleInspect)
		v1.POST("/convert/rom2xm", h.handleROMToXM)
		v1.POST("/convert/rom2midi", h.handleROMToMIDI)
		v1.POST("/convert/xm2midi", h.handleXMToMIDI)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

type handler struct {
	trackerName string
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "gba2xm",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns a list of supported file formats
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":     []converter.Format{converter.FormatROM, converter.FormatXM, converter.FormatMIDI, converter.FormatWAV},
		"conversions": converter.GetSupportedConversions(),
	})
}

// readUpload returns the contents of the "file" form field. It writes the
// error response itself and reports false when there is nothing to use.
func readUpload(c *gin.Context) ([]byte, string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}
	return data, header.Filename, true
}

func queryAddress(c *gin.Context) (int, bool) {
	raw := c.Query("address")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
		return 0, false
	}
	addr, err := converter.ParseAddress(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return addr, true
}

func querySong(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.DefaultQuery("song", "0"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// statusFor maps codec errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, gba.ErrSongIndex):
		return http.StatusNotFound
	case errors.Is(err, xm.ErrFieldTooLong):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleScan godoc
// @Summary Scan a ROM for music banks
// @Description Upload a ROM image and receive the offsets of every music bank in it
// @Tags scan
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "ROM image"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/scan [post]
func (h *handler) handleScan(c *gin.Context) {
	data, name, ok := readUpload(c)
	if !ok {
		return
	}
	matches, err := gba.ScanContext(c.Request.Context(), data, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if matches == nil {
		matches = []gba.Match{}
	}
	c.JSON(http.StatusOK, gin.H{
		"file":     name,
		"gameCode": converter.GameCode(data),
		"matches":  matches,
	})
}

type instrumentSummary struct {
	Index        int  `json:"index"`
	SampleLength int  `json:"sampleLength"`
	LoopStart    int  `json:"loopStart"`
	LoopLength   int  `json:"loopLength"`
	Volume       int  `json:"volume"`
	Panning      int  `json:"panning"`
	Finetune     int  `json:"finetune"`
	RelativeNote int  `json:"relativeNote"`
	Fadeout      int  `json:"fadeout"`
	VolumeEnv    bool `json:"volumeEnvelope"`
	PanningEnv   bool `json:"panningEnvelope"`
}

type songSummary struct {
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	Channels    int     `json:"channels"`
	OrderLength int     `json:"orderLength"`
	Patterns    int     `json:"patterns"`
	Tickrate    int     `json:"tickrate"`
	Tempo       int     `json:"tempo"`
	LoopPoint   int     `json:"loopPoint"`
	Order       []uint8 `json:"order"`
}

// handleInspect godoc
// @Summary Describe a music bank
// @Description Upload a ROM image and receive the instruments and songs of the bank at address
// @Tags scan
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "ROM image"
// @Param address query string true "Bank address, decimal or 0x hex"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/inspect [post]
func (h *handler) handleInspect(c *gin.Context) {
	data, _, ok := readUpload(c)
	if !ok {
		return
	}
	addr, ok := queryAddress(c)
	if !ok {
		return
	}

	bank, err := converter.New(data, h.trackerName).DecodeBank(addr)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	code := converter.GameCode(data)
	instruments := make([]instrumentSummary, len(bank.Instruments))
	for i, inst := range bank.Instruments {
		hd := inst.Header
		instruments[i] = instrumentSummary{
			Index:        i + 1,
			SampleLength: len(inst.Sample),
			LoopStart:    int(hd.SampleLoopStart),
			LoopLength:   int(hd.SampleLoopLength),
			Volume:       int(hd.SampleVolume),
			Panning:      int(hd.SamplePanning),
			Finetune:     int(hd.SampleFinetune),
			RelativeNote: int(hd.SampleRelativeNote),
			Fadeout:      int(hd.VolumeFadeout),
			VolumeEnv:    hd.VolumeEnvelope.PointCount > 0,
			PanningEnv:   hd.PanningEnvelope.PointCount > 0,
		}
	}
	songs := make([]songSummary, len(bank.Songs))
	for i, s := range bank.Songs {
		songs[i] = songSummary{
			Index:       i,
			Name:        converter.SongName(code, addr, i),
			Channels:    int(s.Header.ChannelCount),
			OrderLength: len(s.PatternOrder),
			Patterns:    len(s.Patterns),
			Tickrate:    int(s.Header.Tickrate),
			Tempo:       int(s.Header.Tempo),
			LoopPoint:   int(s.Header.LoopPoint),
			Order:       s.PatternOrder,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     addr,
		"gameCode":    code,
		"valid":       gba.IsValidBank(data, addr),
		"instruments": instruments,
		"songs":       songs,
	})
}

// handleROMToXM godoc
// @Summary Convert one song of a bank to XM
// @Description Upload a ROM image and receive the song as an extended module
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "ROM image"
// @Param address query string true "Bank address, decimal or 0x hex"
// @Param song query int false "Song index (default: 0)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert/rom2xm [post]
func (h *handler) handleROMToXM(c *gin.Context) {
	m, ok := h.songModule(c)
	if !ok {
		return
	}
	data, err := m.MarshalBinary()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	sendFile(c, m.Name+".xm", "application/octet-stream", data)
}

// handleROMToMIDI godoc
// @Summary Convert one song of a bank to MIDI
// @Description Upload a ROM image and receive the song as a Standard MIDI File
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "ROM image"
// @Param address query string true "Bank address, decimal or 0x hex"
// @Param song query int false "Song index (default: 0)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert/rom2midi [post]
func (h *handler) handleROMToMIDI(c *gin.Context) {
	m, ok := h.songModule(c)
	if !ok {
		return
	}
	data, err := converter.NewMIDIConverter().GenerateMIDI(m.Song())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	sendFile(c, m.Name+".mid", "audio/midi", data)
}

// handleXMToMIDI godoc
// @Summary Convert XM to MIDI
// @Description Upload an extended module and receive a MIDI file
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "XM file to convert"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert/xm2midi [post]
func (h *handler) handleXMToMIDI(c *gin.Context) {
	data, name, ok := readUpload(c)
	if !ok {
		return
	}
	m, err := xm.Decode(data)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	result, err := converter.NewMIDIConverter().GenerateMIDI(m.Song())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	outputName := strings.TrimSuffix(name, ".xm")
	if outputName == "" || outputName == name {
		outputName = "converted"
	}
	sendFile(c, outputName+".mid", "audio/midi", result)
}

func (h *handler) songModule(c *gin.Context) (*xm.Module, bool) {
	data, _, ok := readUpload(c)
	if !ok {
		return nil, false
	}
	addr, ok := queryAddress(c)
	if !ok {
		return nil, false
	}
	index, ok := querySong(c)
	if !ok {
		return nil, false
	}

	conv := converter.New(data, h.trackerName)
	bank, err := conv.DecodeBank(addr)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return nil, false
	}
	m, err := conv.SongModule(bank, index)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return m, true
}

func sendFile(c *gin.Context, name, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	c.Data(http.StatusOK, contentType, data)
}
