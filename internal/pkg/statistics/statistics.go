package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/app/repository"
	"github.com/Resonant-Projects/parkpick/internal/pkg/cache"
	"github.com/Resonant-Projects/parkpick/internal/pkg/database"
)

const (
	CacheKeyUsers          = "statistics:users:total"
	CacheKeyReferralsTotal = "statistics:referrals:total"
	CacheKeyRewardsTotal   = "statistics:rewards:total"
	CacheKeyPicksDaily     = "statistics:picks:daily:%s" // Format with date YYYY-MM-DD
	CacheExpiration        = 30 * time.Minute
)

// StatisticsData holds the aggregate counters exposed on the stats endpoint
type StatisticsData struct {
	TotalUsers     int
	TotalReferrals int
	TotalRewards   int
	TodayPicks     int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cache refresh interval has elapsed
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached counters when they are stale
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recomputes all counters and stores them in the cache
func UpdateStatisticsCache() error {
	db := database.GetDB()

	totalUsers, err := countUsers()
	if err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var totalReferrals int64
	if err := db.Model(&models.Referral{}).Count(&totalReferrals).Error; err != nil {
		log.Printf("Error counting total referrals: %v", err)
		return err
	}

	var totalRewards int64
	if err := db.Model(&models.RewardGrant{}).Count(&totalRewards).Error; err != nil {
		log.Printf("Error counting total reward grants: %v", err)
		return err
	}

	today := models.PickDay(time.Now())
	var todayPicks int64
	if err := db.Model(&models.Pick{}).Where("day = ?", today).Count(&todayPicks).Error; err != nil {
		log.Printf("Error counting today's picks: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}
	if err := cache.Set(CacheKeyReferralsTotal, strconv.FormatInt(totalReferrals, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total referrals: %v", err)
		return err
	}
	if err := cache.Set(CacheKeyRewardsTotal, strconv.FormatInt(totalRewards, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total reward grants: %v", err)
		return err
	}
	dailyKey := fmt.Sprintf(CacheKeyPicksDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayPicks, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's picks: %v", err)
		return err
	}

	return nil
}

// GetTotalUsers returns the total number of users from cache or database
func GetTotalUsers() int {
	return readCachedInt(CacheKeyUsers, countUsers)
}

// GetStatisticsData returns all statistics counters, refreshing the cache if stale
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:     readCachedInt(CacheKeyUsers, countUsers),
		TotalReferrals: readCachedInt(CacheKeyReferralsTotal, countReferrals),
		TotalRewards:   readCachedInt(CacheKeyRewardsTotal, countRewards),
		TodayPicks:     readCachedInt(fmt.Sprintf(CacheKeyPicksDaily, models.PickDay(time.Now())), countTodayPicks),
	}
}

// readCachedInt reads a counter from cache, falling back to a DB count that
// also repopulates the cache.
func readCachedInt(key string, fallback func() (int64, error)) int {
	val, err := cache.Get(key)
	if err != nil {
		count, dbErr := fallback()
		if dbErr != nil {
			log.Printf("Error counting for %s: %v", key, dbErr)
			return 0
		}
		if err := cache.Set(key, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching %s: %v", key, err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}

func countUsers() (int64, error) {
	return repository.GetGlobalFactory().GetUserRepository().Count()
}

func countReferrals() (int64, error) {
	var n int64
	err := database.GetDB().Model(&models.Referral{}).Count(&n).Error
	return n, err
}

func countRewards() (int64, error) {
	var n int64
	err := database.GetDB().Model(&models.RewardGrant{}).Count(&n).Error
	return n, err
}

func countTodayPicks() (int64, error) {
	var n int64
	err := database.GetDB().Model(&models.Pick{}).
		Where("day = ?", models.PickDay(time.Now())).Count(&n).Error
	return n, err
}
