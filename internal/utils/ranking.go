package utils

import (
	"math"
	"time"
)

type RankConfig struct {
	Gravity        float64 // 时间重力 (1.5)
	WeightComment  float64 // 2.0
	WeightUpvote   float64 // 1.0
	WeightDownvote float64 // 1.5
	WeightPollVote float64 // 0.5
	ScaleFactor    float64 // 放大系数 (100)
}

var DefaultConfig = RankConfig{
	Gravity:        1.5,
	WeightComment:  2.0,
	WeightUpvote:   1.0,
	WeightDownvote: 1.5,
	WeightPollVote: 0.5,
	ScaleFactor:    100.0, // 让分数落在 0-100 区间，像"温度"
}

// Interactions is what the hot score is computed from.
type Interactions struct {
	Upvotes   int
	Downvotes int
	Comments  int
	PollVotes int
}

func CalculateScore(created, now time.Time, in Interactions) float64 {
	hours := now.Sub(created).Hours()
	if hours < 0 {
		hours = 0
	}

	// 1. 计算加权互动值 (Weighted Sum)
	weightedSum := (float64(in.Upvotes) * DefaultConfig.WeightUpvote) +
		(float64(in.Comments) * DefaultConfig.WeightComment) +
		(float64(in.PollVotes) * DefaultConfig.WeightPollVote) -
		(float64(in.Downvotes) * DefaultConfig.WeightDownvote)

	// 2. 基础修正
	if weightedSum < 0 {
		weightedSum = 0 // 防止负数无法取对数
	}

	// 3. 对数平滑 (Log Smoothing)
	// log10(sum + 1) -> 确保 sum=0 时结果为 0
	logScore := math.Log10(weightedSum + 1)

	// 4. 放大系数
	numerator := logScore * DefaultConfig.ScaleFactor

	// 5. 时间衰减 (分母)
	decay := math.Pow(hours+2, DefaultConfig.Gravity)

	return numerator / decay
}
