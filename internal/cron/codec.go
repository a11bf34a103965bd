package cron

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
)

// Job record layout, little endian:
//
//	[0]      active (0/1)
//	[1]      action
//	[2]      pin
//	[3]      reserved
//	[4:8]    value (int32)
//	[8:12]   last fired epoch (uint32)
//	[12:44]  expression, NUL padded
//	[44:48]  reserved
const (
	recordSize   = 48
	exprOffset   = 12
	exprFieldLen = constants.MaxCronExpressionLen + 1

	// TableSize is the exact length of a persisted job table.
	TableSize = recordSize * constants.MaxCronJobs
)

// EncodeTable flattens the job table into TableSize bytes.
func EncodeTable(jobs *[constants.MaxCronJobs]models.CronJob) []byte {
	buf := make([]byte, TableSize)
	for i := range jobs {
		encodeRecord(buf[i*recordSize:(i+1)*recordSize], &jobs[i])
	}
	return buf
}

func encodeRecord(rec []byte, job *models.CronJob) {
	if job.Active {
		rec[0] = 1
	}
	rec[1] = byte(job.Action)
	rec[2] = job.Pin
	binary.LittleEndian.PutUint32(rec[4:8], uint32(job.Value))
	binary.LittleEndian.PutUint32(rec[8:12], job.LastFiredEpoch)
	copy(rec[exprOffset:exprOffset+exprFieldLen-1], job.Expression)
}

// DecodeTable rebuilds the job table. Any length other than TableSize is
// treated as a torn or foreign write and rejected.
func DecodeTable(data []byte) ([constants.MaxCronJobs]models.CronJob, error) {
	var jobs [constants.MaxCronJobs]models.CronJob
	if len(data) != TableSize {
		return jobs, fmt.Errorf("job table has %d bytes, want %d", len(data), TableSize)
	}
	for i := range jobs {
		jobs[i] = decodeRecord(data[i*recordSize : (i+1)*recordSize])
	}
	return jobs, nil
}

func decodeRecord(rec []byte) models.CronJob {
	expr := rec[exprOffset : exprOffset+exprFieldLen]
	if n := bytes.IndexByte(expr, 0); n >= 0 {
		expr = expr[:n]
	}
	return models.CronJob{
		Active:         rec[0] != 0,
		Action:         models.CronAction(rec[1]),
		Pin:            rec[2],
		Value:          int32(binary.LittleEndian.Uint32(rec[4:8])),
		LastFiredEpoch: binary.LittleEndian.Uint32(rec[8:12]),
		Expression:     string(expr),
	}
}
